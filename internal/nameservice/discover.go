package nameservice

import (
	"time"

	"github.com/alljoyn-go/thinclient/internal/status"
)

// discoverWindow is how long a single WHO-HAS retry waits for answers
// before it is re-sent, independent of the caller's overall deadline.
const discoverWindow = time.Second

// Found reports one matching responder discovered for a requested
// name.
type Found struct {
	Name string
	IsAt IsAt
}

// Discover multicasts WHO-HAS for namePrefix and collects IS-AT
// answers whose advertised names match it, retrying once per
// discoverWindow until timeout elapses; there is no limit on the number
// of matches collected before then. A timeout with zero matches is reported as
// status.NoMatch; a transport failure is reported as-is.
func Discover(sock *Socket, namePrefix string, timeout time.Duration) ([]Found, status.Status) {
	query, st := WhoHas{Names: []string{namePrefix}}.Encode()
	if st != status.OK {
		return nil, st
	}

	deadline := time.Now().Add(timeout)
	var found []Found
	seen := map[string]bool{}

	for {
		if st := sock.Send(query); st != status.OK {
			return found, st
		}
		windowEnd := time.Now().Add(discoverWindow)
		if timeout > 0 && windowEnd.After(deadline) {
			windowEnd = deadline
		}
		for time.Now().Before(windowEnd) {
			raw, _, st := sock.Receive(time.Until(windowEnd))
			if st == status.Timeout {
				break
			}
			if st != status.OK {
				return found, st
			}
			pkt, st := Decode(raw)
			if st != status.OK || pkt.IsAt == nil {
				continue
			}
			for _, have := range pkt.IsAt.Names {
				if !MatchesPrefix(namePrefix, have) {
					continue
				}
				key := pkt.IsAt.GUID.String() + "/" + have
				if seen[key] {
					continue
				}
				seen[key] = true
				found = append(found, Found{Name: have, IsAt: *pkt.IsAt})
			}
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			break
		}
		if timeout == 0 {
			break
		}
	}

	if len(found) == 0 {
		return nil, status.NoMatch
	}
	return found, status.OK
}

// Respond answers any WHO-HAS query on sock that matches one of
// ownedNames with an IS-AT advertisement, until stop is closed.
func Respond(sock *Socket, guid IsAt, ownedNames []string, stop <-chan struct{}) status.Status {
	for {
		select {
		case <-stop:
			return status.OK
		default:
		}
		raw, _, st := sock.Receive(discoverWindow)
		if st == status.Timeout {
			continue
		}
		if st != status.OK {
			return st
		}
		pkt, st := Decode(raw)
		if st != status.OK || pkt.WhoHas == nil {
			continue
		}
		var matched []string
		for _, requested := range pkt.WhoHas.Names {
			for _, owned := range ownedNames {
				if MatchesPrefix(requested, owned) {
					matched = append(matched, owned)
				}
			}
		}
		if len(matched) == 0 {
			continue
		}
		ans := guid
		ans.Names = matched
		encoded, st := ans.Encode()
		if st != status.OK {
			continue
		}
		_ = sock.Send(encoded)
	}
}
