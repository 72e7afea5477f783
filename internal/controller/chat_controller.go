package controller

import (
	"bufio"
	"context"

	"ai-tutor-be/internal/dto"
	"ai-tutor-be/internal/pkg/serverutils"
	"ai-tutor-be/internal/service"
	"ai-tutor-be/pkg/tutor/turnlock"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	ChatStream(ctx *fiber.Ctx) error
	Chat(ctx *fiber.Ctx) error
	GetConversations(ctx *fiber.Ctx) error
	GetConversation(ctx *fiber.Ctx) error
	DeleteConversation(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{
		chatService: chatService,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/tutor/v1")
	h.Post("chat/stream", c.ChatStream)
	h.Post("chat", c.Chat)
	h.Get("conversations/:student_id", c.GetConversations)
	h.Get("conversation/:conversation_id", c.GetConversation)
	h.Delete("conversation/:conversation_id", c.DeleteConversation)
}

// ChatStream runs a tutoring turn and streams its events over SSE. The turn
// keeps its own context so a dropped client cancels it instead of the
// request lifecycle tearing it down mid-write.
func (c *chatController) ChatStream(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(context.Background())

	events, err := c.chatService.StreamTurn(streamCtx, &req)
	if err != nil {
		cancel()
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for ev := range events {
			frame, err := ev.Encode()
			if err != nil {
				continue
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				// Client gone. cancel() stops the turn; nothing is persisted.
				return
			}
		}
	}))

	return nil
}

func (c *chatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.Chat(ctx.Context(), &req)
	if err != nil {
		if err == turnlock.ErrTurnInProgress {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success chat", res))
}

func (c *chatController) GetConversations(ctx *fiber.Ctx) error {
	studentId := ctx.Params("student_id")
	if studentId == "" {
		return fiber.NewError(fiber.StatusBadRequest, "student_id is required")
	}

	res, err := c.chatService.GetConversations(ctx.Context(), studentId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get conversations", res))
}

func (c *chatController) GetConversation(ctx *fiber.Ctx) error {
	conversationId, err := uuid.Parse(ctx.Params("conversation_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid conversation_id")
	}

	res, err := c.chatService.GetConversation(ctx.Context(), conversationId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get conversation", res))
}

func (c *chatController) DeleteConversation(ctx *fiber.Ctx) error {
	conversationId, err := uuid.Parse(ctx.Params("conversation_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid conversation_id")
	}

	res, err := c.chatService.DeleteConversation(ctx.Context(), conversationId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success delete conversation", res))
}
