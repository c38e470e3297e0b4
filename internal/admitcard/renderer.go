// Package admitcard renders printable admit cards.
package admitcard

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bobbygour30/admitcard/internal/domain"
)

//go:embed admitcard.html.tmpl
var cardTemplate string

// Renderer turns an admit card into a standalone HTML page.
type Renderer struct {
	tmpl     *template.Template
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

// NewRenderer parses the embedded template.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("admitcard").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(cardTemplate)
	if err != nil {
		return nil, fmt.Errorf("admitcard: parse template: %w", err)
	}
	return &Renderer{
		tmpl:     tmpl,
		markdown: goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough)),
		policy:   newInstructionsPolicy(),
	}, nil
}

type view struct {
	Title            string
	Issuer           domain.Issuer
	ApplicationNo    string
	Name             string
	FatherName       string
	MotherName       string
	DOB              string
	Gender           string
	Union            string
	Posts            []string
	Districts        []string
	ExamCenter       string
	ExamShift        string
	GateEntryMinutes int
	Paid             bool
	TransactionNo    string
	PhotoURL         template.URL
	SignatureURL     template.URL
	Instructions     template.HTML
}

// Render writes card as HTML to w.
func (r *Renderer) Render(w io.Writer, card domain.AdmitCard) error {
	reg := card.Registration
	info := reg.PersonalInfo
	instructions, err := r.instructions(card.Instructions)
	if err != nil {
		return err
	}
	v := view{
		Title:            card.ExamTitle,
		Issuer:           card.Issuer,
		ApplicationNo:    reg.ApplicationNumber,
		Name:             info.Name,
		FatherName:       info.FatherName,
		MotherName:       info.MotherName,
		DOB:              info.DOB,
		Gender:           info.Gender,
		Union:            info.Union.DisplayName(),
		Posts:            info.SelectedPosts,
		Districts:        info.DistrictPreferences,
		ExamCenter:       reg.ExamCenter,
		ExamShift:        reg.ExamShift,
		GateEntryMinutes: card.GateEntryMinutes,
		Paid:             reg.PaymentStatus,
		TransactionNo:    reg.TransactionNumber,
		PhotoURL:         imageURL(card.PhotoURL),
		SignatureURL:     imageURL(card.SignatureURL),
		Instructions:     instructions,
	}
	return r.tmpl.Execute(w, v)
}

func (r *Renderer) instructions(markdown string) (template.HTML, error) {
	if strings.TrimSpace(markdown) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("admitcard: convert instructions: %w", err)
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes())), nil
}

// imageURL passes signed https links and inline image data through; anything
// else is dropped.
func imageURL(raw string) template.URL {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "https://"), strings.HasPrefix(raw, "data:image/"):
		return template.URL(raw)
	default:
		return ""
	}
}

func newInstructionsPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("p", "span", "li")
	policy.RequireNoFollowOnLinks(true)
	return policy
}
