package whatsapp

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// pairingClientName is shown on the phone when linking by pairing code.
const pairingClientName = "Chrome (Linux)"

const lidLookupTimeout = 5 * time.Second

// lidResolver maps hidden-user (LID) addresses to phone numbers. It is
// satisfied by the device store's LID map.
type lidResolver interface {
	GetPNForLID(ctx context.Context, lid types.JID) (types.JID, error)
}

// Client is a Messenger backed by whatsmeow. Device keys and the session
// live in a sqlite database, one device per relay identity.
type Client struct {
	clientID  string
	container *sqlstore.Container
	logLevel  string

	mu      sync.RWMutex
	wa      *whatsmeow.Client
	lids    lidResolver
	handler Handler

	// ctx bounds background work started by the client (QR loops, restarts).
	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient opens the device store at storeDSN and prepares a client for
// clientID. It does not connect; call Start.
func NewClient(ctx context.Context, clientID, storeDSN, logLevel string) (*Client, error) {
	container, err := sqlstore.New(ctx, "sqlite3", storeDSN, waLog.Stdout("Database", logLevel, true))
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	c := &Client{
		clientID:  clientID,
		container: container,
		logLevel:  logLevel,
	}
	if err := c.newSession(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// newSession builds a whatsmeow client over the stored (or a fresh) device.
func (c *Client) newSession(ctx context.Context) error {
	device, err := c.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to load device: %w", err)
	}
	wa := whatsmeow.NewClient(device, waLog.Stdout("Client/"+c.clientID, c.logLevel, true))
	wa.AddEventHandler(c.handleEvent)

	c.mu.Lock()
	c.wa = wa
	c.lids = device.LIDs
	c.mu.Unlock()
	return nil
}

func (c *Client) client() *whatsmeow.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wa
}

// OnEvent registers the lifecycle handler. Only one handler is kept.
func (c *Client) OnEvent(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *Client) emit(evt Event) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h != nil {
		h(evt)
	}
}

// Start connects to WhatsApp. Without a stored session it begins the QR
// flow, emitting qr events until the device is paired.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()
	return c.connect(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	wa := c.client()
	if wa.Store.ID == nil {
		qrChan, err := wa.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to open qr channel: %w", err)
		}
		if err := wa.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		go c.consumeQR(qrChan)
		return nil
	}

	if err := wa.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (c *Client) consumeQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.emit(Event{Type: EventQR, QR: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			// PairSuccess reports authenticated.
		case whatsmeow.QRChannelTimeout.Event:
			c.emit(Event{Type: EventAuthFailure, Reason: "qr code timed out"})
		case whatsmeow.QRChannelEventError:
			c.emit(Event{Type: EventAuthFailure, Reason: fmt.Sprintf("pairing failed: %v", item.Error)})
		default:
			c.emit(Event{Type: EventAuthFailure, Reason: item.Event})
		}
	}
}

// Stop disconnects and closes the device store.
func (c *Client) Stop() {
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	c.client().Disconnect()
	if err := c.container.Close(); err != nil {
		log.Printf("WARN: failed to close device store: %v", err)
	}
}

// restart replaces a logged-out session with a fresh device and starts a
// new QR flow.
func (c *Client) restart() {
	c.mu.RLock()
	ctx := c.ctx
	c.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	c.client().Disconnect()
	if err := c.newSession(ctx); err != nil {
		log.Printf("WARN: failed to create new session: %v", err)
		return
	}
	if err := c.connect(ctx); err != nil {
		log.Printf("WARN: failed to reconnect after logout: %v", err)
	}
}

// Info returns the logged-in identity, or nil before pairing.
func (c *Client) Info() *Info {
	wa := c.client()
	id := wa.Store.ID
	if id == nil {
		return nil
	}
	return &Info{
		Wid:      id.User,
		JID:      id.ToNonAD().String(),
		Pushname: wa.Store.PushName,
		Platform: wa.Store.Platform,
	}
}

func userJID(number string) (types.JID, error) {
	digits, err := NormalizeNumber(number)
	if err != nil {
		return types.JID{}, err
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

// IsRegisteredUser reports whether number has a WhatsApp account.
func (c *Client) IsRegisteredUser(ctx context.Context, number string) (bool, error) {
	jid, err := userJID(number)
	if err != nil {
		return false, err
	}
	wa := c.client()
	if !wa.IsLoggedIn() {
		return false, ErrNotConnected
	}

	resp, err := wa.IsOnWhatsApp(ctx, []string{"+" + jid.User})
	if err != nil {
		return false, fmt.Errorf("failed to check registration: %w", err)
	}
	for _, r := range resp {
		if r.IsIn {
			return true, nil
		}
	}
	return false, nil
}

// SendMessage sends a text message. A successful send also emits the
// server acknowledgement.
func (c *Client) SendMessage(ctx context.Context, number, text string) (*DeliveryInfo, error) {
	jid, err := userJID(number)
	if err != nil {
		return nil, err
	}
	wa := c.client()
	if !wa.IsLoggedIn() {
		return nil, ErrNotConnected
	}

	resp, err := wa.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	c.emit(Event{Type: EventMessageAck, Ack: &Ack{
		To:         jid.User,
		Level:      AckServer,
		MessageIDs: []string{resp.ID},
	}})

	return &DeliveryInfo{
		ID:        resp.ID,
		To:        jid.String(),
		Timestamp: resp.Timestamp,
	}, nil
}

// RequestPairingCode links this device by phone number instead of QR.
func (c *Client) RequestPairingCode(ctx context.Context, number string) (string, error) {
	digits, err := NormalizeNumber(number)
	if err != nil {
		return "", err
	}
	code, err := c.client().PairPhone(ctx, digits, true, whatsmeow.PairClientChrome, pairingClientName)
	if err != nil {
		return "", fmt.Errorf("failed to request pairing code: %w", err)
	}
	return code, nil
}

// RejectCall declines an inbound call.
func (c *Client) RejectCall(ctx context.Context, call Call) error {
	from, err := types.ParseJID(call.From)
	if err != nil {
		return fmt.Errorf("invalid caller %q: %w", call.From, err)
	}
	if err := c.client().RejectCall(ctx, from, call.ID); err != nil {
		return fmt.Errorf("failed to reject call %s: %w", call.ID, err)
	}
	return nil
}

// Logout unlinks the device, emits disconnected and starts a new QR flow.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.client().Logout(ctx); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	c.emit(Event{Type: EventDisconnected, Reason: "LOGOUT"})
	go c.restart()
	return nil
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		c.emit(Event{Type: EventReady, Info: c.Info()})

	case *events.PairSuccess:
		c.emit(Event{Type: EventAuthenticated, Info: &Info{
			Wid:      v.ID.User,
			JID:      v.ID.ToNonAD().String(),
			Platform: v.Platform,
		}})

	case *events.PairError:
		c.emit(Event{Type: EventAuthFailure, Reason: v.Error.Error()})

	case *events.ConnectFailure:
		c.emit(Event{Type: EventAuthFailure, Reason: fmt.Sprintf("%s %s", v.Reason, v.Message)})

	case *events.TemporaryBan:
		c.emit(Event{Type: EventAuthFailure, Reason: v.String()})

	case *events.LoggedOut:
		c.emit(Event{Type: EventDisconnected, Reason: v.Reason.String()})
		go c.restart()

	case *events.StreamReplaced:
		c.emit(Event{Type: EventDisconnected, Reason: "stream replaced"})

	case *events.Message:
		c.emit(Event{Type: EventMessage, Message: &InboundMessage{
			ID:        v.Info.ID,
			From:      v.Info.Sender.User,
			Chat:      v.Info.Chat.String(),
			Body:      messageBody(v.Message),
			Timestamp: v.Info.Timestamp,
		}})

	case *events.Receipt:
		level, ok := receiptLevel(v.Type)
		if !ok || v.IsGroup {
			return
		}
		to, err := c.receiptNumber(v.MessageSource)
		if err != nil {
			log.Printf("WARN: dropping %s receipt for %v: %v", v.Type, v.MessageIDs, err)
			return
		}
		c.emit(Event{Type: EventMessageAck, Ack: &Ack{
			To:         to,
			Level:      level,
			MessageIDs: v.MessageIDs,
		}})

	case *events.CallOffer:
		c.emit(Event{Type: EventCall, Call: &Call{
			ID:   v.CallID,
			From: v.From.String(),
		}})
	}
}

// receiptNumber returns the phone number a direct-chat receipt belongs to.
// Chats addressed by LID are mapped back through the receipt's alternate
// address or the device store.
func (c *Client) receiptNumber(src types.MessageSource) (string, error) {
	chat := src.Chat
	if chat.Server != types.HiddenUserServer {
		return chat.User, nil
	}
	if src.SenderAlt.Server == types.DefaultUserServer {
		return src.SenderAlt.User, nil
	}

	c.mu.RLock()
	lids := c.lids
	c.mu.RUnlock()
	if lids == nil {
		return "", fmt.Errorf("no phone number known for %s", chat)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lidLookupTimeout)
	defer cancel()
	pn, err := lids.GetPNForLID(ctx, chat.ToNonAD())
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", chat, err)
	}
	if pn.IsEmpty() {
		return "", fmt.Errorf("no phone number known for %s", chat)
	}
	return pn.User, nil
}

func receiptLevel(t types.ReceiptType) (int, bool) {
	switch t {
	case types.ReceiptTypeDelivered:
		return AckDevice, true
	case types.ReceiptTypeRead:
		return AckRead, true
	case types.ReceiptTypePlayed:
		return AckPlayed, true
	case types.ReceiptTypeServerError:
		return AckError, true
	default:
		return 0, false
	}
}

func messageBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	return ""
}

// compile-time check
var _ Messenger = (*Client)(nil)
