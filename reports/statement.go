// Package reports provides PDF gate statement generation
package reports

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/qugate/gate-node/contract"
	"github.com/qugate/gate-node/storage/postgres"
)

// getSignatureSecretKey returns the HMAC signing key from environment
// SECURITY: This MUST be set in production via STATEMENT_SIGNATURE_KEY env var
func getSignatureSecretKey() []byte {
	key := os.Getenv("STATEMENT_SIGNATURE_KEY")
	if key == "" {
		log.Println("⚠️  SECURITY WARNING: STATEMENT_SIGNATURE_KEY not set - using insecure default (DEV ONLY)")
		return []byte("qugate-dev-statement-key-NOT-FOR-PRODUCTION")
	}
	return []byte(key)
}

// modeNames maps forwarding modes to display labels
var modeNames = map[contract.Mode]string{
	contract.ModeSplit:       "SPLIT",
	contract.ModeRoundRobin:  "ROUND_ROBIN",
	contract.ModeThreshold:   "THRESHOLD",
	contract.ModeRandom:      "RANDOM",
	contract.ModeConditional: "CONDITIONAL",
}

// Generator generates PDF statements for gates
type Generator struct {
	nodeName string
}

// NewGenerator creates a new statement generator
func NewGenerator(nodeName string) *Generator {
	return &Generator{nodeName: nodeName}
}

// transferRow mirrors the JSON shape transfers take inside the archive
type transferRow struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// GeneratePDF renders a statement covering a gate's configuration and
// its archived activity. Receipts are expected newest-first as returned
// by the archive.
func (g *Generator) GeneratePDF(gateID uint64, info *contract.GateInfo, receipts []postgres.ArchivedReceipt, epoch uint16) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	// Header
	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(16, 185, 129)
	pdf.CellFormat(190, 15, g.nodeName, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(190, 8, "Gate Statement", "", 1, "C", false, 0, "")

	pdf.Ln(10)

	// Status badge
	pdf.SetFont("Helvetica", "B", 14)
	if info.Active {
		pdf.SetTextColor(16, 185, 129)
		pdf.CellFormat(190, 10, "GATE ACTIVE", "", 1, "C", false, 0, "")
	} else {
		pdf.SetTextColor(239, 68, 68)
		pdf.CellFormat(190, 10, "GATE CLOSED", "", 1, "C", false, 0, "")
	}

	pdf.Ln(10)

	// Gate Details Box
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFillColor(248, 250, 252)

	startY := pdf.GetY()
	pdf.Rect(10, startY, 190, 53, "F")

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(15, startY+5)
	pdf.Cell(40, 8, "Gate ID:")
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("%d", gateID))

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(15, startY+13)
	pdf.Cell(40, 8, "Mode:")
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, modeNames[info.Mode])

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(15, startY+21)
	pdf.Cell(40, 8, "Owner:")
	pdf.SetFont("Courier", "", 9)
	pdf.Cell(0, 8, hex.EncodeToString(info.Owner[:]))

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(15, startY+29)
	pdf.Cell(40, 8, "Recipients:")
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("%d", info.RecipientCount))

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(15, startY+37)
	pdf.Cell(40, 8, "Created:")
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("epoch %d (current epoch %d)", info.CreatedEpoch, epoch))

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(15, startY+45)
	pdf.Cell(40, 8, "Last Activity:")
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("epoch %d", info.LastActivityEpoch))

	pdf.Ln(63)

	// Value Summary
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(190, 10, "Value Summary", "", 1, "L", false, 0, "")

	pdf.SetFillColor(229, 231, 235)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(120, 8, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(70, 8, "Units", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(120, 8, "Total Received", "1", 0, "L", false, 0, "")
	pdf.CellFormat(70, 8, fmt.Sprintf("%d", info.TotalReceived), "1", 1, "R", false, 0, "")

	pdf.CellFormat(120, 8, "Total Forwarded", "1", 0, "L", false, 0, "")
	pdf.CellFormat(70, 8, fmt.Sprintf("%d", info.TotalForwarded), "1", 1, "R", false, 0, "")

	if info.Mode == contract.ModeThreshold {
		pdf.CellFormat(120, 8, fmt.Sprintf("Held Below Threshold (%d)", info.Threshold), "1", 0, "L", false, 0, "")
		pdf.SetTextColor(234, 179, 8)
		pdf.CellFormat(70, 8, fmt.Sprintf("%d", info.CurrentBalance), "1", 1, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.Ln(10)

	// Recent Activity
	if len(receipts) > 0 {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(190, 10, "Recent Activity", "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(229, 231, 235)
		pdf.CellFormat(20, 7, "Ordinal", "1", 0, "C", true, 0, "")
		pdf.CellFormat(25, 7, "Procedure", "1", 0, "C", true, 0, "")
		pdf.CellFormat(20, 7, "Epoch", "1", 0, "C", true, 0, "")
		pdf.CellFormat(25, 7, "Status", "1", 0, "C", true, 0, "")
		pdf.CellFormat(35, 7, "Attached", "1", 0, "C", true, 0, "")
		pdf.CellFormat(35, 7, "Forwarded", "1", 0, "C", true, 0, "")
		pdf.CellFormat(30, 7, "Burned", "1", 1, "C", true, 0, "")

		pdf.SetFont("Helvetica", "", 9)
		for _, r := range receipts {
			pdf.CellFormat(20, 7, fmt.Sprintf("%d", r.Ordinal), "1", 0, "C", false, 0, "")
			pdf.CellFormat(25, 7, r.Procedure, "1", 0, "C", false, 0, "")
			pdf.CellFormat(20, 7, fmt.Sprintf("%d", r.Epoch), "1", 0, "C", false, 0, "")

			if r.Status == 0 {
				pdf.SetTextColor(16, 185, 129)
				pdf.CellFormat(25, 7, "OK", "1", 0, "C", false, 0, "")
			} else {
				pdf.SetTextColor(239, 68, 68)
				pdf.CellFormat(25, 7, fmt.Sprintf("ERR %d", r.Status), "1", 0, "C", false, 0, "")
			}
			pdf.SetTextColor(0, 0, 0)

			pdf.CellFormat(35, 7, fmt.Sprintf("%d", r.Attached), "1", 0, "C", false, 0, "")
			pdf.CellFormat(35, 7, fmt.Sprintf("%d", sumTransfers(r.Transfers)), "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 7, fmt.Sprintf("%d", r.Burned), "1", 1, "C", false, 0, "")
		}
	}

	pdf.Ln(10)

	// Footer
	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(190, 6, "This is an automated statement from the QuGate forwarding node.", "", 1, "C", false, 0, "")
	pdf.CellFormat(190, 6, fmt.Sprintf("Generated on %s", time.Now().Format("January 2, 2006 at 3:04 PM")), "", 1, "C", false, 0, "")

	pdf.Ln(8)

	// Digital Signature Box
	signature := generateDigitalSignature(gateID, info, epoch)
	verificationCode := generateVerificationCode(gateID, epoch)

	pdf.SetFillColor(30, 41, 59)
	sigY := pdf.GetY()
	pdf.Rect(10, sigY, 190, 40, "F")

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(16, 185, 129)
	pdf.SetXY(15, sigY+5)
	pdf.Cell(180, 6, "DIGITAL SIGNATURE - Statement Authenticity Verification")

	pdf.SetFont("Courier", "", 7)
	pdf.SetTextColor(200, 200, 200)
	pdf.SetXY(15, sigY+13)
	pdf.Cell(180, 5, fmt.Sprintf("Signature: %s", signature))

	pdf.SetXY(15, sigY+20)
	pdf.Cell(180, 5, fmt.Sprintf("Verification Code: %s", verificationCode))

	pdf.SetFont("Helvetica", "I", 7)
	pdf.SetTextColor(150, 150, 150)
	pdf.SetXY(15, sigY+28)
	pdf.MultiCell(180, 4, "This signature binds the statement to the gate state at the epoch it was issued. Verify against the receipt archive.", "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// sumTransfers totals the forwarded amounts in a receipt's transfer set
func sumTransfers(raw json.RawMessage) uint64 {
	var rows []transferRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return 0
	}
	var total uint64
	for _, row := range rows {
		total += row.Amount
	}
	return total
}

// generateDigitalSignature creates an HMAC-SHA256 signature over the
// gate's replicated counters at statement time
func generateDigitalSignature(gateID uint64, info *contract.GateInfo, epoch uint16) string {
	data := fmt.Sprintf("%d|%s|%d|%d|%d|%d",
		gateID,
		hex.EncodeToString(info.Owner[:]),
		info.TotalReceived,
		info.TotalForwarded,
		info.CurrentBalance,
		epoch,
	)

	h := hmac.New(sha256.New, getSignatureSecretKey())
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// generateVerificationCode creates a short code for quick verification
func generateVerificationCode(gateID uint64, epoch uint16) string {
	data := fmt.Sprintf("%d|%d|%s", gateID, epoch, time.Now().Format("20060102150405"))
	h := sha256.Sum256([]byte(data))
	return fmt.Sprintf("QG-%s", hex.EncodeToString(h[:])[:16])
}
