package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/config"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

// SubscriptionManager определяет операции сервиса подписок, доступные из чата.
type SubscriptionManager interface {
	RegisterUser(ctx context.Context, telegramID int64, fullName, username string, trialDays int) (*models.User, error)
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	AddTime(ctx context.Context, telegramID int64, months, days, hours, minutes int) (time.Time, error)
	RemoveTime(ctx context.Context, telegramID int64, months, days, hours, minutes int) (time.Time, error)
	AttachProfile(ctx context.Context, telegramID int64, profileData string) error
}

// ProfileProvisioner создаёт и удаляет клиентов на VPN-панели.
type ProfileProvisioner interface {
	AddClient(ctx context.Context, email string) (*models.VlessProfile, error)
	Revoke(ctx context.Context, email string) error
}

// AdminRepository — операции хранилища, доступные только из админских
// команд: статические профили и безвозвратное удаление пользователей.
type AdminRepository interface {
	CreateStaticProfile(ctx context.Context, name, vlessURL string) (int, error)
	ListStaticProfiles(ctx context.Context) ([]*models.StaticProfile, error)
	DeleteStaticProfile(ctx context.Context, id int) (int, error)
	DeleteUser(ctx context.Context, telegramID int64) (int, error)
}

// Publisher отправляет подтвержденные оплаты в очередь обработчика.
type Publisher interface {
	PublishConfirmedPayment(event models.PaymentEvent) error
}

// Handler обрабатывает входящие обновления Telegram.
type Handler struct {
	api       *tgbotapi.BotAPI
	subs      SubscriptionManager
	panel     ProfileProvisioner
	admin     AdminRepository
	publisher Publisher
	cfg       config.Telegram
	trialDays int
	log       *slog.Logger
}

// NewHandler создает новый экземпляр Handler.
func NewHandler(api *tgbotapi.BotAPI, subs SubscriptionManager, panel ProfileProvisioner,
	admin AdminRepository, publisher Publisher, cfg config.Telegram,
	trialDays int, log *slog.Logger) *Handler {
	return &Handler{
		api:       api,
		subs:      subs,
		panel:     panel,
		admin:     admin,
		publisher: publisher,
		cfg:       cfg,
		trialDays: trialDays,
		log:       log,
	}
}

// Run запускает long-polling цикл обработки обновлений до отмены контекста.
func (h *Handler) Run(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := h.api.GetUpdatesChan(updateConfig)
	h.log.Info("bot update loop started")

	for {
		select {
		case update := <-updates:
			h.handleUpdate(ctx, update)
		case <-ctx.Done():
			h.api.StopReceivingUpdates()
			h.log.Info("bot update loop stopped")
			return
		}
	}
}

func (h *Handler) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.PreCheckoutQuery != nil:
		h.handlePreCheckout(update.PreCheckoutQuery)
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		h.handleSuccessfulPayment(update.Message)
	case update.Message != nil && update.Message.IsCommand():
		h.handleCommand(ctx, update.Message)
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "status":
		h.handleStatus(ctx, msg)
	case "connect":
		h.handleConnect(ctx, msg)
	case "renew":
		h.handleRenew(msg)
	case "stats":
		h.handleStats(ctx, msg)
	case "confirm_payment":
		h.adminOnly(ctx, msg, h.handleConfirmPayment)
	case "addtime":
		h.adminOnly(ctx, msg, h.handleAddTime)
	case "removetime":
		h.adminOnly(ctx, msg, h.handleRemoveTime)
	case "profiles":
		h.adminOnly(ctx, msg, h.handleListProfiles)
	case "addprofile":
		h.adminOnly(ctx, msg, h.handleAddProfile)
	case "delprofile":
		h.adminOnly(ctx, msg, h.handleDelProfile)
	case "deluser":
		h.adminOnly(ctx, msg, h.handleDelUser)
	default:
		h.reply(msg.Chat.ID, msgUnknownCommand)
	}
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	fullName := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	user, err := h.subs.RegisterUser(ctx, msg.From.ID, fullName, msg.From.UserName, h.trialDays)
	if err != nil {
		h.log.Error("failed to register user", sl.Err(err))
		h.reply(msg.Chat.ID, msgInternalError)
		return
	}
	h.reply(msg.Chat.ID, welcomeMessage(user))
}

func (h *Handler) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	user, err := h.subs.GetUser(ctx, msg.From.ID)
	if err != nil {
		h.reply(msg.Chat.ID, msgNotRegistered)
		return
	}
	h.reply(msg.Chat.ID, statusMessage(user, time.Now().UTC()))
}

// handleStats показывает пользователю накопленные счётчики трафика.
// Счётчики обновляются еженедельной рассылкой статистики.
func (h *Handler) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	user, err := h.subs.GetUser(ctx, msg.From.ID)
	if err != nil {
		h.reply(msg.Chat.ID, msgNotRegistered)
		return
	}
	h.reply(msg.Chat.ID, trafficMessage(user))
}

// handleConnect выдаёт пользователю VPN-профиль: создаёт клиента на
// панели и сохраняет сериализованный профиль в хранилище.
func (h *Handler) handleConnect(ctx context.Context, msg *tgbotapi.Message) {
	user, err := h.subs.GetUser(ctx, msg.From.ID)
	if err != nil {
		h.reply(msg.Chat.ID, msgNotRegistered)
		return
	}
	now := time.Now().UTC()
	if user.SubscriptionEnd == nil || !user.SubscriptionEnd.After(now) {
		h.reply(msg.Chat.ID, msgSubscriptionInactive)
		return
	}
	if user.HasProfile() {
		profile, err := user.ParseProfile()
		if err == nil {
			h.reply(msg.Chat.ID, connectMessage(profile.URL))
			return
		}
	}

	email := fmt.Sprintf("tg%d", msg.From.ID)
	profile, err := h.panel.AddClient(ctx, email)
	if err != nil {
		h.log.Error("failed to create client on panel", sl.Err(err))
		h.reply(msg.Chat.ID, msgPanelUnavailable)
		return
	}
	data, err := profile.Marshal()
	if err == nil {
		err = h.subs.AttachProfile(ctx, msg.From.ID, data)
	}
	if err != nil {
		h.log.Error("failed to attach profile", sl.Err(err))
		h.reply(msg.Chat.ID, msgInternalError)
		return
	}
	h.reply(msg.Chat.ID, connectMessage(profile.URL))
}

// handleRenew показывает тарифы с кнопками оплаты Stars.
func (h *Handler) handleRenew(msg *tgbotapi.Message) {
	months := make([]int, 0, len(h.cfg.StarsPrices))
	for m := range h.cfg.StarsPrices {
		months = append(months, m)
	}
	sort.Ints(months)

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, m := range months {
		label := fmt.Sprintf("%d мес. — %d ⭐", m, h.cfg.StarsPrices[m])
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("buy_%d", m))))
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, renewMessage(h.cfg.PayURL))
	reply.ParseMode = tgbotapi.ModeMarkdown
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := h.api.Send(reply); err != nil {
		h.log.Warn("failed to send renew menu", sl.Err(err))
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	defer func() {
		if _, err := h.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			h.log.Warn("failed to answer callback", sl.Err(err))
		}
	}()

	var months int
	if _, err := fmt.Sscanf(cb.Data, "buy_%d", &months); err != nil {
		return
	}
	price, ok := h.cfg.StarsPrices[months]
	if !ok {
		return
	}

	invoice := tgbotapi.NewInvoice(cb.Message.Chat.ID,
		fmt.Sprintf("Подписка на %d %s", months, monthsSuffix(months)),
		"Продление доступа к VPN-сервису",
		fmt.Sprintf("renew_%d", months),
		"", "", "XTR",
		[]tgbotapi.LabeledPrice{{Label: "Подписка", Amount: price}})
	if _, err := h.api.Send(invoice); err != nil {
		h.log.Error("failed to send invoice", sl.Err(err))
	}
}

func (h *Handler) handlePreCheckout(query *tgbotapi.PreCheckoutQuery) {
	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 true,
	}
	if _, err := h.api.Request(answer); err != nil {
		h.log.Error("failed to answer pre-checkout query", sl.Err(err))
	}
}

// handleSuccessfulPayment публикует подтвержденную оплату Stars в очередь;
// продление применяет payment-processor.
func (h *Handler) handleSuccessfulPayment(msg *tgbotapi.Message) {
	payment := msg.SuccessfulPayment
	var months int
	if _, err := fmt.Sscanf(payment.InvoicePayload, "renew_%d", &months); err != nil {
		h.log.Error("unexpected invoice payload",
			slog.String("payload", payment.InvoicePayload))
		return
	}

	event := models.PaymentEvent{
		TelegramID: msg.From.ID,
		Months:     months,
		Amount:     payment.TotalAmount,
		Method:     models.PaymentMethodStars,
		PaidAt:     time.Now().UTC(),
	}
	if err := h.publisher.PublishConfirmedPayment(event); err != nil {
		h.log.Error("failed to publish payment event", sl.Err(err))
		h.reply(msg.Chat.ID, msgPaymentDelayed)
		return
	}
	h.reply(msg.Chat.ID, msgPaymentReceived)
}

// adminOnly выполняет обработчик, только если отправитель — администратор.
func (h *Handler) adminOnly(ctx context.Context, msg *tgbotapi.Message, fn func(context.Context, *tgbotapi.Message)) {
	user, err := h.subs.GetUser(ctx, msg.From.ID)
	if err != nil || !user.IsAdmin {
		h.reply(msg.Chat.ID, msgAccessDenied)
		return
	}
	fn(ctx, msg)
}

// handleConfirmPayment — ручное подтверждение банковского перевода:
// /confirm_payment <telegram_id> <months>.
func (h *Handler) handleConfirmPayment(_ context.Context, msg *tgbotapi.Message) {
	var telegramID int64
	var months int
	if _, err := fmt.Sscanf(msg.CommandArguments(), "%d %d", &telegramID, &months); err != nil {
		h.reply(msg.Chat.ID, msgConfirmPaymentUsage)
		return
	}

	event := models.PaymentEvent{
		TelegramID:    telegramID,
		Months:        months,
		Method:        models.PaymentMethodTransfer,
		IsAdminAction: true,
		PaidAt:        time.Now().UTC(),
	}
	if err := h.publisher.PublishConfirmedPayment(event); err != nil {
		h.log.Error("failed to publish payment event", sl.Err(err))
		h.reply(msg.Chat.ID, msgInternalError)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("✅ Оплата пользователя `%d` подтверждена: +%d %s",
		telegramID, months, monthsSuffix(months)))
}

// handleAddTime — /addtime <telegram_id> <months> <days> <hours> <minutes>.
func (h *Handler) handleAddTime(ctx context.Context, msg *tgbotapi.Message) {
	var telegramID int64
	var months, days, hours, minutes int
	if _, err := fmt.Sscanf(msg.CommandArguments(), "%d %d %d %d %d",
		&telegramID, &months, &days, &hours, &minutes); err != nil {
		h.reply(msg.Chat.ID, msgAddTimeUsage)
		return
	}

	newEnd, err := h.subs.AddTime(ctx, telegramID, months, days, hours, minutes)
	if err != nil {
		h.log.Error("failed to add time", sl.Err(err))
		h.reply(msg.Chat.ID, msgUserNotFound)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("✅ Время добавлено. Новая дата окончания: `%s`",
		newEnd.Format("02.01.2006 15:04")))
}

// handleRemoveTime — /removetime <telegram_id> <months> <days> <hours> <minutes>.
func (h *Handler) handleRemoveTime(ctx context.Context, msg *tgbotapi.Message) {
	var telegramID int64
	var months, days, hours, minutes int
	if _, err := fmt.Sscanf(msg.CommandArguments(), "%d %d %d %d %d",
		&telegramID, &months, &days, &hours, &minutes); err != nil {
		h.reply(msg.Chat.ID, msgRemoveTimeUsage)
		return
	}

	newEnd, err := h.subs.RemoveTime(ctx, telegramID, months, days, hours, minutes)
	if err != nil {
		h.log.Error("failed to remove time", sl.Err(err))
		h.reply(msg.Chat.ID, msgUserNotFound)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("✅ Время убрано. Новая дата окончания: `%s`",
		newEnd.Format("02.01.2006 15:04")))
}

func (h *Handler) handleListProfiles(ctx context.Context, msg *tgbotapi.Message) {
	profiles, err := h.admin.ListStaticProfiles(ctx)
	if err != nil {
		h.log.Error("failed to list static profiles", sl.Err(err))
		h.reply(msg.Chat.ID, msgInternalError)
		return
	}
	if len(profiles) == 0 {
		h.reply(msg.Chat.ID, "Статических профилей нет")
		return
	}

	var b strings.Builder
	b.WriteString("📋 *Статические профили:*\n\n")
	for _, p := range profiles {
		fmt.Fprintf(&b, "`%d` — %s (%s)\n", p.ID, p.Name, p.CreatedAt.Format("02.01.2006"))
	}
	h.reply(msg.Chat.ID, b.String())
}

// handleAddProfile — /addprofile <name>: создаёт клиента на панели и
// сохраняет именованный профиль.
func (h *Handler) handleAddProfile(ctx context.Context, msg *tgbotapi.Message) {
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		h.reply(msg.Chat.ID, "Использование: `/addprofile <имя>`")
		return
	}

	profile, err := h.panel.AddClient(ctx, name)
	if err != nil {
		h.log.Error("failed to create static client on panel", sl.Err(err))
		h.reply(msg.Chat.ID, msgPanelUnavailable)
		return
	}
	if _, err := h.admin.CreateStaticProfile(ctx, name, profile.URL); err != nil {
		h.log.Error("failed to store static profile", sl.Err(err))
		h.reply(msg.Chat.ID, msgInternalError)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("✅ Профиль *%s* создан:\n`%s`", name, profile.URL))
}

// handleDelProfile — /delprofile <id>: удаляет профиль локально и на панели.
func (h *Handler) handleDelProfile(ctx context.Context, msg *tgbotapi.Message) {
	var id int
	if _, err := fmt.Sscanf(msg.CommandArguments(), "%d", &id); err != nil {
		h.reply(msg.Chat.ID, "Использование: `/delprofile <id>`")
		return
	}

	profiles, err := h.admin.ListStaticProfiles(ctx)
	if err != nil {
		h.reply(msg.Chat.ID, msgInternalError)
		return
	}
	name := ""
	for _, p := range profiles {
		if p.ID == id {
			name = p.Name
			break
		}
	}

	count, err := h.admin.DeleteStaticProfile(ctx, id)
	if err != nil || count == 0 {
		h.reply(msg.Chat.ID, "Профиль не найден")
		return
	}
	if name != "" {
		if err := h.panel.Revoke(ctx, name); err != nil {
			h.log.Warn("failed to revoke static client on panel", sl.Err(err))
		}
	}
	h.reply(msg.Chat.ID, "✅ Профиль удалён")
}

// handleDelUser — /deluser <telegram_id>: отзывает VPN-профиль на панели
// и безвозвратно удаляет запись пользователя.
func (h *Handler) handleDelUser(ctx context.Context, msg *tgbotapi.Message) {
	var telegramID int64
	if _, err := fmt.Sscanf(msg.CommandArguments(), "%d", &telegramID); err != nil {
		h.reply(msg.Chat.ID, "Использование: `/deluser <telegram_id>`")
		return
	}

	if user, err := h.subs.GetUser(ctx, telegramID); err == nil {
		if profile, perr := user.ParseProfile(); perr == nil && profile != nil {
			if rerr := h.panel.Revoke(ctx, profile.Email); rerr != nil {
				h.log.Warn("failed to revoke client on panel", sl.Err(rerr))
			}
		}
	}

	count, err := h.admin.DeleteUser(ctx, telegramID)
	if err != nil {
		h.log.Error("failed to delete user", sl.Err(err))
		h.reply(msg.Chat.ID, msgInternalError)
		return
	}
	if count == 0 {
		h.reply(msg.Chat.ID, msgUserNotFound)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("✅ Пользователь `%d` удалён", telegramID))
}

func (h *Handler) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := h.api.Send(msg); err != nil {
		h.log.Warn("failed to send reply", slog.Int64("chat_id", chatID), sl.Err(err))
	}
}
