package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Family is the address family of one agent descriptor (SPEC_FULL.md §3).
type Family int

const (
	FamilyInet Family = iota
	FamilyUnix
)

func (f Family) String() string {
	if f == FamilyUnix {
		return "unix"
	}
	return "inet"
}

// DefaultAgentPort is the IANA-assigned search-daemon port used when a host
// spec omits one.
const DefaultAgentPort = 9312

// unixSockaddrPathLimit is the common unix sockaddr_un path capacity; longer
// paths cannot be bound on any of the platforms the poller backends target.
const unixSockaddrPathLimit = 104

var hostPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Address is one parsed "host[:port]" or "/unix/path" alternative.
type Address struct {
	Family Family
	Host   string // literal hostname/IP as given, inet only
	Port   int    // inet only
	Path   string // unix only
}

func (a Address) String() string {
	if a.Family == FamilyUnix {
		return a.Path
	}
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// ParseAddressPort parses a single "host[:port]" or "/unix/path" token.
// Warnings are non-fatal notices (e.g. a defaulted port); err is non-nil
// only for a token that cannot describe any valid endpoint.
func ParseAddressPort(spec string) (Address, []string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Address{}, nil, fmt.Errorf("config: empty address")
	}

	if strings.HasPrefix(spec, "/") {
		if len(spec) > unixSockaddrPathLimit {
			return Address{}, nil, fmt.Errorf("config: unix path %q exceeds sockaddr_un limit of %d bytes", spec, unixSockaddrPathLimit)
		}
		return Address{Family: FamilyUnix, Path: spec}, nil, nil
	}

	host, portStr, hasPort := strings.Cut(spec, ":")
	if !hostPattern.MatchString(host) {
		return Address{}, nil, fmt.Errorf("config: invalid host %q", host)
	}

	if !hasPort {
		return Address{Family: FamilyInet, Host: host, Port: DefaultAgentPort},
			[]string{fmt.Sprintf("no port specified for host %q, defaulting to %d", host, DefaultAgentPort)},
			nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Address{}, nil, fmt.Errorf("config: invalid port %q for host %q", portStr, host)
	}

	return Address{Family: FamilyInet, Host: host, Port: port}, nil, nil
}

// ParseIndexList splits a comma-separated, whitespace-tolerant index list.
// A whitespace-only (or empty) input returns an empty, non-nil slice.
func ParseIndexList(spec string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Strategy is the mirror-group selection strategy tag (SPEC_FULL.md §4.4).
type Strategy int

const (
	StrategyRandom Strategy = iota
	StrategyRoundRobin
	StrategyAvoidDead
	StrategyAvoidErrors
)

func (s Strategy) String() string {
	switch s {
	case StrategyRoundRobin:
		return "roundrobin"
	case StrategyAvoidDead:
		return "nodeads"
	case StrategyAvoidErrors:
		return "noerrors"
	default:
		return "random"
	}
}

func parseStrategy(s string) (Strategy, error) {
	switch s {
	case "random":
		return StrategyRandom, nil
	case "roundrobin":
		return StrategyRoundRobin, nil
	case "nodeads":
		return StrategyAvoidDead, nil
	case "noerrors":
		return StrategyAvoidErrors, nil
	default:
		return 0, fmt.Errorf("config: unknown ha_strategy %q", s)
	}
}

// Options holds the bracketed "[option=value,...]" settings of an agent spec.
type Options struct {
	Persistent bool
	Strategy   Strategy
	Blackhole  bool
	RetryCount int // negative means "force this many retries per mirror"
}

// ParseOptions parses the comma-separated key=value list found inside an
// agent spec's "[...]" block (brackets already stripped by the caller).
func ParseOptions(spec string) (Options, error) {
	opts := Options{Strategy: StrategyRandom}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return opts, nil
	}

	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return Options{}, fmt.Errorf("config: malformed option %q", pair)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "conn":
			switch value {
			case "pconn", "persistent":
				opts.Persistent = true
			default:
				return Options{}, fmt.Errorf("config: unknown conn option %q", value)
			}
		case "ha_strategy":
			strat, err := parseStrategy(value)
			if err != nil {
				return Options{}, err
			}
			opts.Strategy = strat
		case "blackhole":
			switch value {
			case "1":
				opts.Blackhole = true
			case "0":
				opts.Blackhole = false
			default:
				return Options{}, fmt.Errorf("config: blackhole must be 0 or 1, got %q", value)
			}
		case "retry_count":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Options{}, fmt.Errorf("config: invalid retry_count %q: %w", value, err)
			}
			opts.RetryCount = n
		default:
			return Options{}, fmt.Errorf("config: unknown option %q", key)
		}
	}
	return opts, nil
}

// AgentSpec is the fully parsed form of one agent-spec string: a set of
// interchangeable mirror addresses, the options applying to the whole group,
// and the list of indexes the group serves.
type AgentSpec struct {
	Mirrors []Address
	Options Options
	Indexes []string
}

// ParseAgentSpec parses the full agent-spec grammar (SPEC_FULL.md §6):
// pipe-separated host/unix-path alternatives, an optional bracketed option
// list, and an optional trailing ":index[,index]*".
func ParseAgentSpec(spec string) (*AgentSpec, []string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil, fmt.Errorf("config: empty agent spec")
	}

	var optsStr string
	if end := strings.LastIndex(spec, "]"); end != -1 {
		start := strings.LastIndex(spec[:end], "[")
		if start == -1 {
			return nil, nil, fmt.Errorf("config: unmatched ']' in agent spec %q", spec)
		}
		optsStr = spec[start+1 : end]
		spec = spec[:start] + spec[end+1:]
	}

	opts, err := ParseOptions(optsStr)
	if err != nil {
		return nil, nil, err
	}

	tokens := strings.Split(spec, "|")
	var indexes []string
	lastIdx := len(tokens) - 1
	if !strings.HasPrefix(strings.TrimSpace(tokens[lastIdx]), "/") {
		parts := strings.Split(tokens[lastIdx], ":")
		if len(parts) == 3 {
			indexes = ParseIndexList(parts[2])
			tokens[lastIdx] = parts[0] + ":" + parts[1]
		}
	}

	var warnings []string
	mirrors := make([]Address, 0, len(tokens))
	for _, tok := range tokens {
		addr, warns, err := ParseAddressPort(tok)
		if err != nil {
			return nil, nil, fmt.Errorf("config: agent spec %q: %w", spec, err)
		}
		mirrors = append(mirrors, addr)
		warnings = append(warnings, warns...)
	}

	return &AgentSpec{Mirrors: mirrors, Options: opts, Indexes: indexes}, warnings, nil
}
