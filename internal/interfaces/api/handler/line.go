package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reminderengine/internal/application/dto"
	"reminderengine/internal/application/service"
	"reminderengine/internal/domain/constant"
	lineClient "reminderengine/internal/infrastructure/line"
	appErrors "reminderengine/internal/pkg/errors"
	"reminderengine/internal/pkg/logger"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/line/line-bot-sdk-go/v7/linebot"
)

const (
	// schedulePostbackPrefix marks datetime picker postbacks; the rest of the data is the title.
	schedulePostbackPrefix = "schedule="
	// LINE limits postback data to 300 characters.
	maxPostbackData = 300
	maxTemplateText = 160
	pickerLayout    = "2006-01-02T15:04"
	displayLayout   = "2006/01/02 15:04"
)

// LineHandler handles incoming LINE webhook events.
type LineHandler struct {
	lineClient      *lineClient.Client
	reminderService service.ReminderService
	location        *time.Location // Zone of datetime picker values
	log             logger.Logger
}

// NewLineHandler creates a new LineHandler.
func NewLineHandler(
	client *lineClient.Client,
	reminderService service.ReminderService,
	location *time.Location,
	log logger.Logger,
) *LineHandler {
	if location == nil {
		location = time.Local
	}
	return &LineHandler{
		lineClient:      client,
		reminderService: reminderService,
		location:        location,
		log:             log,
	}
}

// command is a parsed "<verb> <id> [minutes]" text message.
type command struct {
	verb    string
	id      uint
	minutes int
}

// parseCommand recognises id-addressed commands such as "dismiss 12" or "snooze 12 15".
func parseCommand(text string) (command, bool) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) < 2 || len(fields) > 3 {
		return command{}, false
	}
	switch fields[0] {
	case lineClient.DismissCommand, lineClient.SnoozeCommand, "cancel":
	default:
		return command{}, false
	}

	id, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil || id == 0 {
		return command{}, false
	}
	cmd := command{verb: fields[0], id: uint(id)}

	if len(fields) == 3 {
		if cmd.verb != lineClient.SnoozeCommand {
			return command{}, false
		}
		minutes, err := strconv.Atoi(fields[2])
		if err != nil || minutes <= 0 {
			return command{}, false
		}
		cmd.minutes = minutes
	}
	return cmd, true
}

// HandleWebhook is the main entry point for webhook requests.
func (h *LineHandler) HandleWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	events, err := h.lineClient.ParseRequest(c.Request())
	if err != nil {
		if errors.Is(err, linebot.ErrInvalidSignature) {
			h.log.Warn("Invalid LINE signature received")
			return c.String(http.StatusBadRequest, "Invalid signature")
		}
		h.log.Error("Failed to parse LINE webhook request", err)
		return c.String(http.StatusInternalServerError, "Error parsing request")
	}

	for _, event := range events {
		h.log.Info(fmt.Sprintf("Processing event type: %s", event.Type))
		switch event.Type {
		case linebot.EventTypeMessage:
			h.handleMessageEvent(ctx, event)
		case linebot.EventTypeFollow:
			h.handleFollowEvent(event)
		case linebot.EventTypePostback:
			h.handlePostbackEvent(ctx, event)
		default:
			h.log.Info(fmt.Sprintf("Unhandled event type: %s", event.Type))
		}
	}

	return c.String(http.StatusOK, "OK")
}

// handleFollowEvent greets a new follower.
func (h *LineHandler) handleFollowEvent(event *linebot.Event) {
	h.log.Info(fmt.Sprintf("User %s followed the bot.", event.Source.UserID))
	h.sendHowToUse(event.ReplyToken)
}

// handleMessageEvent processes message events.
func (h *LineHandler) handleMessageEvent(ctx context.Context, event *linebot.Event) {
	userID := event.Source.UserID
	replyToken := event.ReplyToken

	message, ok := event.Message.(*linebot.TextMessage)
	if !ok {
		h.log.Info(fmt.Sprintf("Received non-text message type from %s", userID))
		return
	}
	text := strings.TrimSpace(message.Text)
	h.log.Info(fmt.Sprintf("Received text message from %s: %s", userID, text))

	switch strings.ToLower(text) {
	case "使い方", "help":
		h.sendHowToUse(replyToken)
		return
	case "一覧", "list":
		h.sendReminderList(ctx, replyToken)
		return
	}

	if cmd, ok := parseCommand(text); ok {
		h.handleCommand(ctx, replyToken, cmd)
		return
	}

	// Anything else is the title of a new reminder.
	h.sendDateTimePicker(replyToken, text)
}

func (h *LineHandler) handleCommand(ctx context.Context, replyToken string, cmd command) {
	var (
		err   error
		reply string
	)
	switch cmd.verb {
	case lineClient.DismissCommand:
		err = h.reminderService.Acknowledge(ctx, cmd.id)
		reply = fmt.Sprintf("リマインド %d を確認済みにしました。", cmd.id)
	case lineClient.SnoozeCommand:
		minutes := cmd.minutes
		if minutes == 0 {
			minutes = DefaultSnoozeMinutes
		}
		err = h.reminderService.Snooze(ctx, cmd.id, time.Duration(minutes)*time.Minute)
		reply = fmt.Sprintf("リマインド %d を%d分後に再通知します。", cmd.id, minutes)
	case "cancel":
		err = h.reminderService.Cancel(ctx, cmd.id)
		reply = fmt.Sprintf("リマインド %d を取り消しました。", cmd.id)
	}

	if err != nil {
		h.replyWithError(replyToken, commandErrorMessage(err))
		return
	}
	if err := h.lineClient.SendMessages(replyToken, linebot.NewTextMessage(reply)); err != nil {
		h.log.Error(fmt.Sprintf("Failed to send %s confirmation for reminder %d", cmd.verb, cmd.id), err)
	}
}

func commandErrorMessage(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrReminderNotFound):
		return "対象のリマインダーが見つかりませんでした。"
	case errors.Is(err, appErrors.ErrInvalidState):
		return "現在の状態ではその操作はできません。"
	case errors.Is(err, appErrors.ErrInvalidSchedule):
		return "過去の日時や無効な日時は指定できません。"
	case errors.Is(err, appErrors.ErrCapabilityDenied):
		return "この端末では正確なタイマーが許可されていません。設定を確認してください。"
	case errors.Is(err, appErrors.ErrNotReady):
		return "起動処理中です。しばらくしてからもう一度お試しください。"
	default:
		return "処理に失敗しました。"
	}
}

// handlePostbackEvent processes datetime picker postbacks.
func (h *LineHandler) handlePostbackEvent(ctx context.Context, event *linebot.Event) {
	userID := event.Source.UserID
	replyToken := event.ReplyToken
	data := event.Postback.Data
	params := event.Postback.Params

	h.log.Info(fmt.Sprintf("Received postback from %s: data=%s, params=%v", userID, data, params))

	title, ok := strings.CutPrefix(data, schedulePostbackPrefix)
	if !ok || strings.TrimSpace(title) == "" {
		h.replyWithError(replyToken, "無効な日時選択アクションです。")
		return
	}
	if params == nil || params.Datetime == "" {
		h.log.Warn(fmt.Sprintf("Postback from user %s missing datetime params", userID))
		h.replyWithError(replyToken, "日時の取得に失敗しました。")
		return
	}

	dueAt, err := time.ParseInLocation(pickerLayout, params.Datetime, h.location)
	if err != nil {
		h.log.Error(fmt.Sprintf("Failed to parse datetime '%s' from postback for user %s", params.Datetime, userID), err)
		h.replyWithError(replyToken, "日時の形式が無効です。")
		return
	}

	id, err := h.reminderService.Schedule(ctx, dto.ScheduleReminderRequest{Title: title, DueAt: dueAt})
	if err != nil {
		h.replyWithError(replyToken, commandErrorMessage(err))
		return
	}

	confirmationMsg := fmt.Sprintf("登録できました!\n%sにリマインドします (ID: %d)", dueAt.Format(displayLayout), id)
	if err := h.lineClient.SendMessages(replyToken, linebot.NewTextMessage(confirmationMsg)); err != nil {
		h.log.Error(fmt.Sprintf("Failed to send time confirmation to user %s", userID), err)
	}
}

// --- Helper methods for message handling ---

func (h *LineHandler) sendHowToUse(replyToken string) {
	howToUse := `リマインドしたいことを送ってください!
その後、日時選択ボタンからリマインドする日時を選べます。

「一覧」と入力すると登録中のリマインドを確認できます。
「cancel ID」で取り消し、「dismiss ID」で確認済みにできます。
「snooze ID 分」で通知済みのリマインドを再設定できます。`

	quickReply := linebot.NewQuickReplyItems(
		linebot.NewQuickReplyButton("", linebot.NewMessageAction("一覧", "一覧")),
		linebot.NewQuickReplyButton("", linebot.NewMessageAction("使い方", "使い方")),
	)
	message := linebot.NewTextMessage(howToUse).WithQuickReplies(quickReply)
	if err := h.lineClient.SendMessages(replyToken, message); err != nil {
		h.log.Error("Failed to send 'how to use' message", err)
	}
}

func (h *LineHandler) sendReminderList(ctx context.Context, replyToken string) {
	reminders, err := h.reminderService.List(ctx)
	if err != nil {
		h.replyWithError(replyToken, commandErrorMessage(err))
		return
	}

	var builder strings.Builder
	for _, r := range reminders {
		if r.State != constant.StateScheduled.String() && r.State != constant.StateFired.String() {
			continue
		}
		builder.WriteString(fmt.Sprintf("[%d] %s (%s)\n%s\n\n", r.ID, r.DueAt.In(h.location).Format(displayLayout), r.State, r.Title))
	}
	listStr := strings.TrimSuffix(builder.String(), "\n\n")
	if listStr == "" {
		listStr = "現在登録されているリマインドはありません"
	}

	if err := h.lineClient.SendMessages(replyToken, linebot.NewTextMessage(listStr)); err != nil {
		h.log.Error("Failed to send reminder list", err)
	}
}

// sendDateTimePicker asks for the due time of a new reminder titled title.
func (h *LineHandler) sendDateTimePicker(replyToken, title string) {
	data := schedulePostbackPrefix + title
	if len(data) > maxPostbackData {
		h.replyWithError(replyToken, "リマインドの内容が長すぎます。")
		return
	}

	now := time.Now().In(h.location)
	// Default initial time: 1 hour from now, rounded to the hour
	initialTime := now.Add(1 * time.Hour).Truncate(time.Hour)
	if initialTime.Before(now) {
		initialTime = now.Add(time.Hour)
	}

	action := linebot.NewDatetimePickerAction(
		"日時選択",
		data,
		"datetime",
		initialTime.Format(pickerLayout),
		now.AddDate(1, 0, 0).Format(pickerLayout),
		now.Format(pickerLayout),
	)
	prompt := fmt.Sprintf("「%s」をリマインドする日時を選択してください", title)
	if utf8.RuneCountInString(prompt) > maxTemplateText {
		prompt = "リマインドする日時を選択してください"
	}
	template := linebot.NewButtonsTemplate("", "", prompt, action)
	if err := h.lineClient.SendMessages(replyToken, linebot.NewTemplateMessage("日時選択", template)); err != nil {
		h.log.Error("Failed to send datetime picker", err)
	}
}

// replyWithError sends a generic error message.
func (h *LineHandler) replyWithError(replyToken, userMessage string) {
	if err := h.lineClient.SendMessages(replyToken, linebot.NewTextMessage(userMessage)); err != nil {
		h.log.Error(fmt.Sprintf("Failed to send error reply message: %s", userMessage), err)
	}
}
