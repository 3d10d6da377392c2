package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/signintech/gopdf"

	"medical-intake-agent/internal/consultation"
	"medical-intake-agent/internal/intake"
)

// DefaultFontPaths are the usual DejaVuSans locations on Alpine and Debian.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

var ErrNoFont = errors.New("no usable font for PDF report")

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName string) error
}

type Service struct {
	tgClient     TelegramClient
	doctorChatID int64
	fontPaths    []string
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(tg TelegramClient, doctorChatID int64, fontPaths []string, logger zerolog.Logger) *Service {
	if len(fontPaths) == 0 {
		fontPaths = DefaultFontPaths
	}
	return &Service{
		tgClient:     tg,
		doctorChatID: doctorChatID,
		fontPaths:    fontPaths,
		logger:       logger.With().Str("component", "report").Logger(),
		now:          time.Now,
	}
}

// SendHandoverReport renders the SBAR handover as a PDF and sends it to the
// clinician chat.
func (s *Service) SendHandoverReport(ctx context.Context, c consultation.Consultation) error {
	pdfBytes, err := s.renderPDF(c)
	if err != nil {
		return err
	}

	fileName := fmt.Sprintf("handover_%s.pdf", c.ID.String())
	if err := s.tgClient.SendDocument(ctx, s.doctorChatID, pdfBytes, fileName); err != nil {
		return fmt.Errorf("send handover report: %w", err)
	}
	s.logger.Info().Str("consultation_id", c.ID.String()).Int("bytes", len(pdfBytes)).Msg("handover report sent")
	return nil
}

// SendEmergencyAlert sends a plain-text alert for a consultation whose vitals
// were classified as an emergency.
func (s *Service) SendEmergencyAlert(ctx context.Context, c consultation.Consultation) error {
	if err := s.tgClient.SendMessage(ctx, s.doctorChatID, EmergencyText(c)); err != nil {
		return fmt.Errorf("send emergency alert: %w", err)
	}
	s.logger.Warn().Str("consultation_id", c.ID.String()).Msg("emergency alert sent")
	return nil
}

// EmergencyText is the alert body for an emergency triage.
func EmergencyText(c consultation.Consultation) string {
	var b strings.Builder
	b.WriteString("EMERGENCY TRIAGE\n")
	fmt.Fprintf(&b, "Consultation: %s\n", c.ID)
	for _, l := range vitalsLines(c.Record.Vitals) {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if cc := deref(c.Record.ChiefComplaint); cc != "" {
		fmt.Fprintf(&b, "Chief complaint: %s\n", cc)
	}
	return strings.TrimRight(b.String(), "\n")
}

type section struct {
	Title string
	Lines []string
}

// handoverSections lays out the record in SBAR order followed by the
// supporting details.
func handoverSections(r intake.Record) []section {
	h := intake.Handover{}
	if r.ClinicalHandover != nil {
		h = *r.ClinicalHandover
	}
	orNone := func(s string) []string {
		if strings.TrimSpace(s) == "" {
			return []string{"-"}
		}
		return []string{s}
	}
	list := func(items []string) []string {
		if len(items) == 0 {
			return []string{"- none reported"}
		}
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = "- " + it
		}
		return out
	}

	return []section{
		{Title: "Patient", Lines: vitalsLines(r.Vitals)},
		{Title: "Situation", Lines: orNone(h.Situation)},
		{Title: "Background", Lines: orNone(h.Background)},
		{Title: "Assessment", Lines: orNone(h.Assessment)},
		{Title: "Recommendation", Lines: orNone(h.Recommendation)},
		{Title: "Chief complaint", Lines: orNone(deref(r.ChiefComplaint))},
		{Title: "History of present illness", Lines: orNone(deref(r.HPI))},
		{Title: "Medications", Lines: list(r.Medications)},
		{Title: "Allergies", Lines: list(r.Allergies)},
		{Title: "Past medical history", Lines: list(r.PastMedicalHistory)},
		{Title: "Medical records", Lines: list(r.MedicalRecords)},
		{Title: "Family history", Lines: orNone(deref(r.FamilyHistory))},
		{Title: "Social history", Lines: orNone(deref(r.SocialHistory))},
	}
}

func vitalsLines(v *intake.Vitals) []string {
	if v == nil {
		return []string{"Vitals not collected"}
	}
	var out []string
	if name := deref(v.PatientName); name != "" {
		out = append(out, "Name: "+name)
	}
	var demo []string
	if v.PatientAge != nil {
		demo = append(demo, strconv.Itoa(*v.PatientAge)+" y")
	}
	if g := deref(v.PatientGender); g != "" {
		demo = append(demo, g)
	}
	if len(demo) > 0 {
		out = append(out, "Age/sex: "+strings.Join(demo, ", "))
	}
	if v.Temperature != nil {
		out = append(out, fmt.Sprintf("Temperature: %.1f %s", v.Temperature.Value, v.Temperature.Unit))
	}
	if v.BloodPressure != nil {
		out = append(out, fmt.Sprintf("Blood pressure: %d/%d", v.BloodPressure.Systolic, v.BloodPressure.Diastolic))
	}
	if v.Weight != nil {
		out = append(out, fmt.Sprintf("Weight: %.1f %s", v.Weight.Value, v.Weight.Unit))
	}
	triage := "Triage: " + string(v.TriageDecision)
	if reason := deref(v.TriageReason); reason != "" {
		triage += " (" + reason + ")"
	}
	return append(out, triage)
}

func (s *Service) renderPDF(c consultation.Consultation) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	fontLoaded := false
	for _, path := range s.fontPaths {
		if err := pdf.AddTTFFont("DejaVu", path); err != nil {
			fontErr = err
			continue
		}
		fontLoaded = true
		break
	}
	if !fontLoaded {
		return nil, fmt.Errorf("%w: %v", ErrNoFont, fontErr)
	}

	// 1. Header
	if err := pdf.SetFont("DejaVu", "", 18); err != nil {
		return nil, err
	}
	if err := pdf.Cell(nil, "Clinical handover"); err != nil {
		return nil, err
	}
	pdf.Br(26)
	if err := pdf.SetFont("DejaVu", "", 10); err != nil {
		return nil, err
	}
	if err := pdf.Cell(nil, fmt.Sprintf("Consultation %s, %s", c.ID, s.now().Format("02.01.2006 15:04"))); err != nil {
		return nil, err
	}
	pdf.Br(20)

	// 2. Sections
	for _, sec := range handoverSections(c.Record) {
		if pdf.GetY() > 760 {
			pdf.AddPage()
		}
		if err := pdf.SetFont("DejaVu", "", 13); err != nil {
			return nil, err
		}
		if err := pdf.Cell(nil, sec.Title); err != nil {
			return nil, err
		}
		pdf.Br(16)
		if err := pdf.SetFont("DejaVu", "", 11); err != nil {
			return nil, err
		}
		for _, line := range sec.Lines {
			wrapped, err := pdf.SplitText(line, 500)
			if err != nil {
				wrapped = []string{line}
			}
			for _, l := range wrapped {
				if pdf.GetY() > 800 {
					pdf.AddPage()
				}
				if err := pdf.Cell(nil, l); err != nil {
					return nil, err
				}
				pdf.Br(13)
			}
		}
		pdf.Br(8)
	}

	// 3. Output
	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
