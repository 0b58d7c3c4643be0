package adapter

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"topomap/internal/errors"
)

const defaultResolvConf = "/etc/resolv.conf"

// DNSResolver looks up PTR records for addresses found during enrichment
type DNSResolver struct {
	client   *dns.Client
	servers  []string
	fallback *net.Resolver
}

// ResolverOption configures a DNSResolver
type ResolverOption func(*DNSResolver)

// WithNameservers overrides the nameservers read from resolv.conf.
// Each entry is host:port.
func WithNameservers(servers ...string) ResolverOption {
	return func(r *DNSResolver) {
		r.servers = servers
	}
}

// WithLookupTimeout bounds each DNS exchange
func WithLookupTimeout(d time.Duration) ResolverOption {
	return func(r *DNSResolver) {
		r.client.Timeout = d
	}
}

// WithFallback sets the resolver used when no nameserver answers.
// Passing nil disables the fallback.
func WithFallback(res *net.Resolver) ResolverOption {
	return func(r *DNSResolver) {
		r.fallback = res
	}
}

// NewDNSResolver creates a resolver using the system nameservers
func NewDNSResolver(opts ...ResolverOption) *DNSResolver {
	r := &DNSResolver{
		client:   &dns.Client{Net: "udp", Timeout: 2 * time.Second},
		fallback: net.DefaultResolver,
	}

	if conf, err := dns.ClientConfigFromFile(defaultResolvConf); err == nil {
		for _, s := range conf.Servers {
			r.servers = append(r.servers, net.JoinHostPort(s, conf.Port))
		}
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LookupAddr returns the first PTR name for ip without the trailing dot
func (r *DNSResolver) LookupAddr(ctx context.Context, ip string) (string, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", errors.Wrap(errors.CodeValidation, "invalid address", err).WithTarget(ip).WithOp("reverse_dns")
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	for _, server := range r.servers {
		in, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			continue
		}
		for _, rr := range in.Answer {
			if ptr, ok := rr.(*dns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, "."), nil
			}
		}
		if in.Rcode == dns.RcodeNameError {
			// Authoritative no such name; asking elsewhere will not help
			return "", errors.New(errors.CodeNotFound, "no PTR record").WithTarget(ip).WithOp("reverse_dns")
		}
	}

	if r.fallback == nil {
		return "", errors.New(errors.CodeNotFound, "no PTR record").WithTarget(ip).WithOp("reverse_dns")
	}

	names, err := r.fallback.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return "", errors.Wrap(errors.CodeNotFound, "no PTR record", err).WithTarget(ip).WithOp("reverse_dns")
	}
	return strings.TrimSuffix(names[0], "."), nil
}
