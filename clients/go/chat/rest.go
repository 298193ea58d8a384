package chat

import (
	"PShare/module/chat/model"
	"PShare/tools/errs"
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// RESTClient talks to the /api/messages routes and the item service's
// "my items" listing. It implements API and InterestSource.
type RESTClient struct {
	c *resty.Client
}

// NewRESTClient authenticates with token as a bearer credential. hc may be
// nil.
func NewRESTClient(baseURL, token string, hc *http.Client) *RESTClient {
	c := resty.New()
	if hc != nil {
		c = resty.NewWithClient(hc)
	}
	c.SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &RESTClient{c: c}
}

func (r *RESTClient) do(ctx context.Context, req *resty.Request, method, path string) error {
	var ce errs.CodeError
	resp, err := req.SetContext(ctx).SetError(&ce).Execute(method, path)
	if err != nil {
		return errs.WrapMsg(err, "request failed", "method", method, "path", path)
	}
	if !resp.IsError() {
		return nil
	}
	if ce.Code == 0 {
		ce.Code = resp.StatusCode()
		ce.Msg = http.StatusText(resp.StatusCode())
	}
	return errs.NewCodeError(ce.Code, ce.Msg).WithDetail(ce.Detail).Wrap()
}

func (r *RESTClient) History(ctx context.Context, otherUserID string) ([]*model.Message, error) {
	var out struct {
		Messages []*model.Message `json:"messages"`
	}
	req := r.c.R().SetPathParam("userId", otherUserID).SetResult(&out)
	if err := r.do(ctx, req, resty.MethodGet, "/api/messages/with/{userId}"); err != nil {
		return nil, err
	}
	if out.Messages == nil {
		out.Messages = []*model.Message{}
	}
	return out.Messages, nil
}

func (r *RESTClient) Send(ctx context.Context, to, text string) (*model.Message, error) {
	var out struct {
		Message *model.Message `json:"message"`
	}
	req := r.c.R().SetBody(map[string]string{"to": to, "text": text}).SetResult(&out)
	if err := r.do(ctx, req, resty.MethodPost, "/api/messages/send"); err != nil {
		return nil, err
	}
	return out.Message, nil
}

func (r *RESTClient) Conversations(ctx context.Context) ([]model.ConversationSummary, error) {
	var out struct {
		Conversations []model.ConversationSummary `json:"conversations"`
	}
	req := r.c.R().SetResult(&out)
	if err := r.do(ctx, req, resty.MethodGet, "/api/messages/conversations"); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (r *RESTClient) MarkRead(ctx context.Context, otherUserID string) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	req := r.c.R().SetPathParam("otherUserId", otherUserID).SetResult(&out)
	if err := r.do(ctx, req, resty.MethodPut, "/api/messages/read/{otherUserId}"); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

// itemDoc is the slice of an item listing the inbox fallback needs. The item
// service populates interestedUsers with user documents keyed by _id.
type itemDoc struct {
	ID              string `json:"_id"`
	InterestedUsers []struct {
		ID             string `json:"_id"`
		Name           string `json:"name"`
		UserName       string `json:"userName"`
		ProfilePicture string `json:"profilePicture"`
	} `json:"interestedUsers"`
}

// InterestedUsers lists everyone interested in any of my items, in listing
// order. Duplicates are left for the caller.
func (r *RESTClient) InterestedUsers(ctx context.Context) ([]*model.UserSummary, error) {
	var items []itemDoc
	req := r.c.R().SetResult(&items)
	if err := r.do(ctx, req, resty.MethodGet, "/api/items/user/items"); err != nil {
		return nil, err
	}
	var out []*model.UserSummary
	for _, it := range items {
		for _, u := range it.InterestedUsers {
			out = append(out, &model.UserSummary{ID: u.ID, Name: u.Name, UserName: u.UserName, ProfilePicture: u.ProfilePicture})
		}
	}
	return out, nil
}

var (
	_ API            = (*RESTClient)(nil)
	_ InterestSource = (*RESTClient)(nil)
)
