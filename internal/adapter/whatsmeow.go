package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	. "github.com/sellerdesk/walink/internal/logging"
	"github.com/sellerdesk/walink/internal/store"
)

// WhatsmeowFactory builds whatsmeow-backed clients over per-tenant sqlite
// credential databases.
type WhatsmeowFactory struct {
	creds *store.Store
}

// NewWhatsmeowFactory creates a factory using the given credential store.
func NewWhatsmeowFactory(creds *store.Store) *WhatsmeowFactory {
	return &WhatsmeowFactory{creds: creds}
}

// NewClient opens (or creates) the tenant's credential database and builds a
// client around it. The event handler is attached before the client is
// returned, so no event can be missed.
func (f *WhatsmeowFactory) NewClient(tenantID string, handler Handler) (Client, error) {
	dbPath, err := f.creds.Path(tenantID)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open credential db for %s: %w", tenantID, err)
	}

	storeLog := &walinkLogger{module: "store/" + tenantID}
	container := sqlstore.NewWithDB(db, "sqlite3", storeLog)

	if err := container.Upgrade(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to upgrade credential store for %s: %w", tenantID, err)
	}

	// Reuse the stored device if one exists, otherwise mint a fresh one for
	// pairing. Multiple devices per tenant never happen in this layout; if a
	// stale extra device survives a crashed pairing attempt, the first one
	// wins and logout clears the rest with the file.
	devices, err := container.GetAllDevices(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to list devices for %s: %w", tenantID, err)
	}

	device := container.NewDevice()
	if len(devices) > 0 {
		device = devices[0]
	}

	clientLog := &walinkLogger{module: "client/" + tenantID}
	c := &meowClient{
		tenantID: tenantID,
		client:   whatsmeow.NewClient(device, clientLog),
		db:       db,
		handler:  handler,
	}
	// The supervisor owns reconnect scheduling; whatsmeow's built-in
	// auto-reconnect would race it and double the attempts per loss.
	c.client.EnableAutoReconnect = false
	c.client.AddEventHandler(c.handleEvent)

	return c, nil
}

// meowClient adapts one whatsmeow.Client to the Client interface.
type meowClient struct {
	tenantID string
	client   *whatsmeow.Client
	db       *sql.DB
	handler  Handler
}

func (c *meowClient) HasCredentials() bool {
	return c.client.Store.ID != nil
}

func (c *meowClient) Connect(ctx context.Context) error {
	// Unpaired device: pump pairing codes to the handler. GetQRChannel must
	// be called before Connect and only works while the store has no ID.
	if !c.HasCredentials() {
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to get pairing channel: %w", err)
		}
		go c.pumpPairing(qrChan)
	}

	if err := c.client.Connect(); err != nil {
		// The socket being up already is the outcome Connect was after
		if errors.Is(err, whatsmeow.ErrAlreadyConnected) {
			return nil
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// pumpPairing forwards pairing codes until the channel closes. The "success"
// item only means the scan was accepted; Connected is emitted from the
// events.Connected handler once the initial sync finishes.
func (c *meowClient) pumpPairing(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			c.handler(PairingCode{Code: item.Code})
		case "success":
			L_debug("whatsapp: pairing scan accepted", "tenant", c.tenantID)
		case "timeout":
			c.handler(Disconnected{Err: fmt.Errorf("pairing code expired")})
		default:
			c.handler(Disconnected{Err: fmt.Errorf("pairing failed: %s", item.Event)})
		}
	}
}

func (c *meowClient) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		// Group chats are not part of a storefront conversation
		if v.Info.IsGroup {
			L_debug("whatsapp: ignoring group message", "tenant", c.tenantID)
			return
		}
		c.handler(Message{
			Sender:   v.Info.Sender.User,
			Chat:     v.Info.Chat.User,
			Text:     extractText(v.Message),
			FromSelf: v.Info.IsFromMe,
		})
	case *events.Connected:
		identity := ""
		if c.client.Store.ID != nil {
			identity = c.client.Store.ID.User
		}
		c.handler(Connected{Identity: identity})
	case *events.Disconnected:
		c.handler(Disconnected{Err: fmt.Errorf("link to server lost")})
	case *events.StreamError:
		c.handler(Disconnected{Err: fmt.Errorf("stream error: %s", v.Code)})
	case *events.LoggedOut:
		c.handler(LoggedOut{Reason: fmt.Sprintf("%v", v.Reason)})
	case *events.PairSuccess:
		L_debug("whatsapp: paired", "tenant", c.tenantID, "jid", v.ID)
	}
}

// extractText pulls plain text out of a message, or "" if it has none.
func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if msg.GetConversation() != "" {
		return msg.GetConversation()
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

func (c *meowClient) Disconnect() {
	c.client.Disconnect()
}

func (c *meowClient) Logout(ctx context.Context) error {
	return c.client.Logout(ctx)
}

func (c *meowClient) Close() error {
	c.client.Disconnect()
	return c.db.Close()
}

func (c *meowClient) SendText(ctx context.Context, to, text string) (string, error) {
	jid := types.NewJID(to, types.DefaultUserServer)
	resp, err := c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", err
	}
	return string(resp.ID), nil
}
