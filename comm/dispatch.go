package comm

// Receive dispatcher (C5): translates a user-level receive(rank|ANY) into a
// concrete, ready endpoint using the query channel (§4.5).
//
// The REDESIGN FLAG in §9 ("Observed pitfall / open question") is resolved
// here as mandated: Broadcast (not Signal/notify-one) on every insertion,
// and every waiter re-scans pendingQueries after waking instead of assuming
// the wake was meant for it. A lone notify-one can starve a targeted
// receive(r) when a different client's announcement wakes a waiter that
// isn't looking for rank r.

import "fmt"

// getSenderRank resolves desiredRank to a concrete remote rank with a
// payload ready to be read. Client role returns desiredRank unchanged and
// rejects AnySender as a precondition violation; Server role consults the
// query channel.
func (c *Communicator) getSenderRank(desiredRank int) int {
	if c.role == RoleClient {
		if desiredRank == AnySender {
			panic("Receive(AnySender) is not valid for a Client-role Communicator")
		}
		return desiredRank
	}

	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if desiredRank == AnySender {
			for rank := range s.pending {
				delete(s.pending, rank)
				if c.cfg.Stats != nil {
					c.cfg.Stats.SetPendingQueries(len(s.pending))
				}
				return rank
			}
		} else if _, ok := s.pending[desiredRank]; ok {
			delete(s.pending, desiredRank)
			if c.cfg.Stats != nil {
				c.cfg.Stats.SetPendingQueries(len(s.pending))
			}
			return desiredRank
		}
		if s.closing.Load() {
			panic(fmt.Sprintf("getSenderRank(%d): communicator is closing", desiredRank))
		}
		s.cond.Wait()
	}
}
