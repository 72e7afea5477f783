package controller

import (
	"io"
	"mime/multipart"
	"strconv"

	"ai-tutor-be/internal/dto"
	"ai-tutor-be/internal/pkg/serverutils"
	"ai-tutor-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ICanvasController interface {
	RegisterRoutes(r fiber.Router)
	IngestSteps(ctx *fiber.Ctx) error
	GetSessions(ctx *fiber.Ctx) error
}

type canvasController struct {
	canvasService service.ICanvasService
}

func NewCanvasController(canvasService service.ICanvasService) ICanvasController {
	return &canvasController{
		canvasService: canvasService,
	}
}

func (c *canvasController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/canvas/v1")
	h.Post("steps", c.IngestSteps)
	h.Get("sessions/:student_id", c.GetSessions)
}

// IngestSteps accepts the drawing client's multipart upload: the full canvas
// under "image", per-step crops under their own field names, and steps and
// strokes metadata as JSON form values.
func (c *canvasController) IngestSteps(ctx *fiber.Ctx) error {
	form, err := ctx.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "expected multipart form")
	}

	req := dto.IngestCanvasRequest{
		SessionId:   formValue(form, "session_id"),
		StudentId:   formValue(form, "student_id"),
		StepsJSON:   formValue(form, "steps"),
		StrokesJSON: formValue(form, "strokes"),
	}
	if req.SessionId == "" || req.StudentId == "" {
		return fiber.NewError(fiber.StatusBadRequest, "session_id and student_id are required")
	}
	req.ImageWidth, _ = strconv.Atoi(formValue(form, "image_width"))
	req.ImageHeight, _ = strconv.Atoi(formValue(form, "image_height"))

	req.StepImages = make(map[string][]byte)
	for field, headers := range form.File {
		if len(headers) == 0 {
			continue
		}
		data, err := readFormFile(headers[0])
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "unreadable file: "+field)
		}
		if field == "image" {
			req.Image = data
		} else {
			req.StepImages[field] = data
		}
	}
	if len(req.Image) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "canvas image is required")
	}

	res, err := c.canvasService.IngestSteps(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success ingest canvas", res))
}

func (c *canvasController) GetSessions(ctx *fiber.Ctx) error {
	studentId := ctx.Params("student_id")
	if studentId == "" {
		return fiber.NewError(fiber.StatusBadRequest, "student_id is required")
	}

	res, err := c.canvasService.GetSessions(ctx.Context(), studentId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get canvas sessions", res))
}

func formValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
