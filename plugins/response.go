package plugins

import (
	"github.com/gofiber/fiber/v2"

	"github.com/linht/lms7cal/calib"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Status  string      `json:"status,omitempty"`
}

// SendSuccess sends a successful response
func SendSuccess(c *fiber.Ctx, data interface{}, message string) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError sends an error response
func SendError(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// SendErrorMessage sends an error response with a custom message
func SendErrorMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}

var statusCodes = map[calib.Status]int{
	calib.StatusRange:        fiber.StatusBadRequest,
	calib.StatusBusy:         fiber.StatusConflict,
	calib.StatusNotConverged: fiber.StatusUnprocessableEntity,
	calib.StatusUnsupported:  fiber.StatusUnprocessableEntity,
	calib.StatusIO:           fiber.StatusBadGateway,
}

// HTTPStatus maps a procedure outcome to an HTTP status code
func HTTPStatus(err error) int {
	if code, ok := statusCodes[calib.StatusOf(err)]; ok {
		return code
	}
	return fiber.StatusInternalServerError
}

// SendCalibrationError sends err with the HTTP status and outcome name of its calibration status
func SendCalibrationError(c *fiber.Ctx, err error) error {
	return c.Status(HTTPStatus(err)).JSON(APIResponse{
		Success: false,
		Error:   err.Error(),
		Status:  calib.StatusOf(err).String(),
	})
}
