package backend

import (
	"context"
	"net/http"

	"github.com/Mutter0815/BotDispatch/internal/bot"
)

type botResp struct {
	Bot bot.Bot `json:"bot"`
}

type botsResp struct {
	Bots []bot.Bot `json:"bots"`
}

func (c *Client) GetBot(ctx context.Context, id string) (bot.Bot, error) {
	var out botResp
	status, eb, err := c.do(ctx, http.MethodGet, "/api/bots/"+esc(id), nil, &out)
	if err != nil {
		return bot.Bot{}, err
	}
	if status == http.StatusNotFound {
		return bot.Bot{}, bot.ErrNotFound
	}
	if status >= 300 {
		return bot.Bot{}, &StatusError{Status: status, Message: eb.text()}
	}
	if out.Bot.ID == "" {
		return bot.Bot{}, bot.ErrNotFound
	}
	return out.Bot, nil
}

func (c *Client) ListBots(ctx context.Context) ([]bot.Bot, error) {
	var out botsResp
	status, eb, err := c.do(ctx, http.MethodGet, "/api/bots", nil, &out)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, &StatusError{Status: status, Message: eb.text()}
	}
	return out.Bots, nil
}
