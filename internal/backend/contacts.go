package backend

import (
	"context"
	"net/http"

	"github.com/Mutter0815/BotDispatch/internal/target"
)

type phoneNumbersResp struct {
	Success      bool     `json:"success"`
	PhoneNumbers []string `json:"phoneNumbers"`
}

// GroupMembers implements target.GroupLookup. A found group with no members
// is an empty slice, not an error.
func (c *Client) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	var out phoneNumbersResp
	status, eb, err := c.do(ctx, http.MethodGet, "/api/contacts/groups/"+esc(groupID)+"/phone-numbers", nil, &out)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, target.ErrGroupNotFound
	case status >= 300:
		return nil, &StatusError{Status: status, Message: eb.text()}
	case eb.Success != nil && !*eb.Success:
		if eb.Code == "not_found" {
			return nil, target.ErrGroupNotFound
		}
		return nil, &StatusError{Status: status, Message: eb.text()}
	}
	if out.PhoneNumbers == nil {
		return []string{}, nil
	}
	return out.PhoneNumbers, nil
}
