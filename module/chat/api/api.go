package api

import (
	"PShare/logger"
	"PShare/middleware"
	midsec "PShare/middleware/security"
	"PShare/module/chat/message"
	"PShare/module/chat/model"
	"PShare/tools/errs"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Sender is the live send path; a REST send fans out exactly like one made
// over the socket.
type Sender interface {
	SendMessage(ctx context.Context, from, to, text string) (*model.Message, error)
}

type MessageAPI struct {
	msgs   *message.Service
	sender Sender
}

func NewMessageAPI(msgs *message.Service, sender Sender) *MessageAPI {
	return &MessageAPI{msgs: msgs, sender: sender}
}

type sendReq struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// Register mounts the /api/messages routes on r behind auth.
func (a *MessageAPI) Register(r gin.IRouter, auth gin.HandlerFunc) {
	g := r.Group("/api/messages")
	opt := middleware.RouteOpt{Auth: auth}
	middleware.GET(g, "/with/:userId", a.HandlerHistory, opt)
	middleware.POST(g, "/send", a.HandlerSend, opt)
	middleware.GET(g, "/conversations", a.HandlerConversations, opt)
	middleware.PUT(g, "/read/:otherUserId", a.HandlerMarkRead, opt)
}

func (a *MessageAPI) HandlerHistory(c *gin.Context) {
	list, err := a.msgs.HistoryWith(c.Request.Context(), midsec.UserID(c), c.Param("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": list})
}

func (a *MessageAPI) HandlerSend(c *gin.Context) {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrValidation.WrapMsg("malformed body"))
		return
	}
	m, err := a.sender.SendMessage(c.Request.Context(), midsec.UserID(c), req.To, req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": m})
}

func (a *MessageAPI) HandlerConversations(c *gin.Context) {
	list, err := a.msgs.ConversationsFor(c.Request.Context(), midsec.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

func (a *MessageAPI) HandlerMarkRead(c *gin.Context) {
	n, err := a.msgs.MarkReadWith(c.Request.Context(), midsec.UserID(c), c.Param("otherUserId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func fail(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("api request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, errs.Public(err))
}
