package relay

// MaxMembers is the number of participants a room holds.
const MaxMembers = 2

// Room represents a single call room shared by at most two participants.
type Room struct {
	// ID is the caller-chosen room identifier.
	ID string

	// Members in join order.
	Members []*Client
}

func (r *Room) Full() bool {
	return len(r.Members) >= MaxMembers
}

func (r *Room) Empty() bool {
	return len(r.Members) == 0
}

func (r *Room) Add(c *Client) {
	r.Members = append(r.Members, c)
}

// Remove drops c from the room and reports whether it was a member.
func (r *Room) Remove(c *Client) bool {
	for i, m := range r.Members {
		if m == c {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return true
		}
	}
	return false
}

// Member finds a participant by socket id.
func (r *Room) Member(socketID string) *Client {
	for _, m := range r.Members {
		if m.ID == socketID {
			return m
		}
	}
	return nil
}

// Others returns every member except c.
func (r *Room) Others(c *Client) []*Client {
	others := make([]*Client, 0, len(r.Members))
	for _, m := range r.Members {
		if m != c {
			others = append(others, m)
		}
	}
	return others
}
