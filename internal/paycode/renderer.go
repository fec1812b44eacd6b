// internal/paycode/renderer.go
package paycode

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"
	"time"

	"deposit-service/internal/domain"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const imageSize = 256

// PaymentCode is what the payer is shown: a scannable target plus exact instructions
type PaymentCode struct {
	Target   string `json:"target"`
	Caption  string `json:"caption"`
	PNG      []byte `json:"png,omitempty"`
	Fallback bool   `json:"fallback"`
}

type Renderer struct {
	qrEnabled bool
	location  *time.Location
	lang      language.Tag
	logger    *zap.Logger
}

type Option func(*Renderer)

// WithLanguage sets the language used for the caption's labels and counts
func WithLanguage(tag language.Tag) Option {
	return func(r *Renderer) { r.lang = tag }
}

func NewRenderer(qrEnabled bool, location *time.Location, logger *zap.Logger, opts ...Option) *Renderer {
	if location == nil {
		location = time.UTC
	}
	r := &Renderer{qrEnabled: qrEnabled, location: location, lang: language.English, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render never fails: when the image cannot be produced the caption alone is returned
func (r *Renderer) Render(order *domain.DepositOrder) *PaymentCode {
	code := &PaymentCode{
		Target:  order.ReceiveAddress,
		Caption: r.Caption(order),
	}

	if !r.qrEnabled {
		code.Fallback = true
		return code
	}

	img, err := encodeQR(order.ReceiveAddress)
	if err != nil {
		r.logger.Warn("failed to render payment QR, using text fallback",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
		code.Fallback = true
		return code
	}
	code.PNG = img
	return code
}

// Caption spells out the exact payment instructions. Amounts are never
// localized so the payer copies them digit for digit.
func (r *Renderer) Caption(order *domain.DepositOrder) string {
	p := message.NewPrinter(r.lang)
	title := cases.Title(r.lang)

	var b strings.Builder
	fmt.Fprintf(&b, "Deposit order %s\n", order.OrderID)
	fmt.Fprintf(&b, "Network: %s\n", order.Network)
	fmt.Fprintf(&b, "Token: %s\n", order.Token)
	fmt.Fprintf(&b, "Address: %s\n", order.ReceiveAddress)
	fmt.Fprintf(&b, "Amount to send: %s %s\n", order.ExpectedAmount.StringFixed(4), order.Token)
	fmt.Fprintf(&b, "Credited amount: %s %s\n", order.BaseAmount.StringFixed(2), order.Token)
	fmt.Fprintf(&b, "Reference: %d\n", order.Discriminator)
	fmt.Fprintf(&b, "Status: %s\n", title.String(string(order.Status)))
	fmt.Fprintf(&b, "Expires: %s\n", order.ExpireAt.In(r.location).Format("2006-01-02 15:04:05 MST"))
	if minutes := int(order.ExpireAt.Sub(order.CreatedAt).Minutes()); minutes > 0 {
		b.WriteString(p.Sprintf("Valid for %d minutes\n", minutes))
	}
	b.WriteString("Send exactly the amount shown, including all decimals. A different amount cannot be matched to this order.")
	return b.String()
}

func encodeQR(content string) ([]byte, error) {
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	code, err = barcode.Scale(code, imageSize, imageSize)
	if err != nil {
		return nil, fmt.Errorf("qr scale: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}
