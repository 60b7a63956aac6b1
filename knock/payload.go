package knock

import (
	"fmt"
	"golang.org/x/text/unicode/norm"
	"strings"
)

type PayloadEntry struct {
	Id          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Payload is the whole bulk identify request body. Knock accepts the batch
// as a unit, so it is always built in full before it is sent.
type Payload struct {
	Users []*PayloadEntry `json:"users"`
}

func (p *Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// DisplayName joins the non-empty name parts with a single space
func DisplayName(parts ...string) string {
	var names []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if len(part) > 0 {
			names = append(names, part)
		}
	}
	return norm.NFC.String(strings.Join(names, " "))
}

func newPayloadEntry(user *SourceUser) (entry *PayloadEntry, err error) {
	var id = strings.TrimSpace(user.Id)
	var email = strings.TrimSpace(user.Email)
	if len(id) == 0 {
		err = fmt.Errorf("source user with email \"%s\" has no identifier", email)
		return
	}
	if len(email) == 0 {
		err = fmt.Errorf("source user \"%s\" has no email", id)
		return
	}
	entry = &PayloadEntry{
		Id:          id,
		Email:       email,
		Name:        DisplayName(user.FirstName, user.MiddleName, user.LastName),
		PhoneNumber: strings.TrimSpace(user.PhoneNumber),
	}
	return
}

// BuildPayload maps every source user to a bulk identify entry
func BuildPayload(users []*SourceUser) (payload *Payload, err error) {
	var entries = make([]*PayloadEntry, 0, len(users))
	for _, u := range users {
		var entry *PayloadEntry
		if entry, err = newPayloadEntry(u); err != nil {
			return
		}
		entries = append(entries, entry)
	}
	payload = &Payload{Users: entries}
	return
}
