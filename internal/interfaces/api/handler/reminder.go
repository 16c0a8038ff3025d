package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reminderengine/internal/application/dto"
	"reminderengine/internal/application/service"
	"reminderengine/internal/domain/constant"
	appErrors "reminderengine/internal/pkg/errors"
	"reminderengine/internal/pkg/logger"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// DefaultSnoozeMinutes applies when a snooze request carries no duration.
const DefaultSnoozeMinutes = 10

const capabilityHint = "exact timers are disabled on this host; enable scheduler.exact_alarms and schedule again"

// ReminderHandler serves the reminder REST API.
type ReminderHandler struct {
	reminderService service.ReminderService
	log             logger.Logger
}

// NewReminderHandler creates a new ReminderHandler.
func NewReminderHandler(reminderService service.ReminderService, log logger.Logger) *ReminderHandler {
	return &ReminderHandler{
		reminderService: reminderService,
		log:             log,
	}
}

// errorStatus maps application errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, appErrors.ErrReminderNotFound):
		return http.StatusNotFound
	case errors.Is(err, appErrors.ErrInvalidSchedule):
		return http.StatusBadRequest
	case errors.Is(err, appErrors.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, appErrors.ErrCapabilityDenied):
		return http.StatusForbidden
	case errors.Is(err, appErrors.ErrSchedulingFailed), errors.Is(err, appErrors.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *ReminderHandler) writeError(c echo.Context, err error) error {
	status := errorStatus(err)
	resp := dto.ErrorResponse{Error: err.Error()}
	switch status {
	case http.StatusForbidden:
		resp.Hint = capabilityHint
	case http.StatusInternalServerError:
		h.log.Error(fmt.Sprintf("Request %s %s failed", c.Request().Method, c.Path()), err)
		resp.Error = appErrors.ErrInternalServer.Error()
	}
	return c.JSON(status, resp)
}

func parseID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid reminder id %q", appErrors.ErrInvalidSchedule, c.Param("id"))
	}
	return uint(id), nil
}

// Schedule handles POST /reminders.
func (h *ReminderHandler) Schedule(c echo.Context) error {
	var req dto.ScheduleReminderRequest
	if err := c.Bind(&req); err != nil {
		return h.writeError(c, fmt.Errorf("%w: %v", appErrors.ErrInvalidSchedule, err))
	}

	id, err := h.reminderService.Schedule(c.Request().Context(), req)
	if err != nil {
		return h.writeError(c, err)
	}

	status := http.StatusCreated
	if req.ID != nil {
		status = http.StatusOK
	}
	return c.JSON(status, dto.ScheduleReminderResponse{ID: id})
}

// List handles GET /reminders. The optional state query parameter filters by state name.
func (h *ReminderHandler) List(c echo.Context) error {
	var (
		filter    constant.ReminderState
		hasFilter bool
	)
	if name := c.QueryParam("state"); name != "" {
		if filter, hasFilter = constant.ParseReminderState(name); !hasFilter {
			return h.writeError(c, fmt.Errorf("%w: unknown state %q", appErrors.ErrInvalidSchedule, name))
		}
	}

	reminders, err := h.reminderService.List(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	if hasFilter {
		filtered := make([]dto.ReminderResponse, 0, len(reminders))
		for _, r := range reminders {
			if r.State == filter.String() {
				filtered = append(filtered, r)
			}
		}
		reminders = filtered
	}
	return c.JSON(http.StatusOK, reminders)
}

// Get handles GET /reminders/:id.
func (h *ReminderHandler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	reminder, err := h.reminderService.GetReminder(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto.ToReminderResponse(reminder))
}

// Cancel handles POST /reminders/:id/cancel.
func (h *ReminderHandler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.reminderService.Cancel(c.Request().Context(), id); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Acknowledge handles POST /reminders/:id/ack.
func (h *ReminderHandler) Acknowledge(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.reminderService.Acknowledge(c.Request().Context(), id); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Snooze handles POST /reminders/:id/snooze. An empty body snoozes for DefaultSnoozeMinutes.
func (h *ReminderHandler) Snooze(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	var req dto.SnoozeRequest
	if err := c.Bind(&req); err != nil {
		return h.writeError(c, fmt.Errorf("%w: %v", appErrors.ErrInvalidSchedule, err))
	}
	if req.Minutes == 0 {
		req.Minutes = DefaultSnoozeMinutes
	}

	if err := h.reminderService.Snooze(c.Request().Context(), id, time.Duration(req.Minutes)*time.Minute); err != nil {
		return h.writeError(c, err)
	}
	reminder, err := h.reminderService.GetReminder(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto.ToReminderResponse(reminder))
}

// Delete handles DELETE /reminders/:id.
func (h *ReminderHandler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return h.writeError(c, err)
	}
	if err := h.reminderService.Delete(c.Request().Context(), id); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Health handles GET /healthz. It reports 503 until startup re-arm has finished.
func (h *ReminderHandler) Health(c echo.Context) error {
	if !h.reminderService.Ready() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "starting"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
