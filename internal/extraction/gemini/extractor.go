package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"payadvice/internal"
	"payadvice/internal/config"
	"payadvice/internal/retry"
)

const prompt = "You are a parser for scanned payment advice documents.\n\n" +
	"Task:\n" +
	"- Read the attached payment advice PDF.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a single JSON object with these keys:\n" +
	"  \"document_info\": object with \"date\", \"clearing_document_number\", \"utr_number\"\n" +
	"  \"bill_details\": array of objects with \"bill_reference_number\", \"accounting_document_number\",\n" +
	"    \"bill_document_date\", \"bill_amount\", \"deduction_tds\", \"net_amount\"\n" +
	"  \"payment_mode_details\": array of objects with \"mode\" and \"amount\"\n\n" +
	"Rules:\n" +
	"- Amounts are numbers without currency symbols or thousands separators.\n" +
	"- Dates are strings exactly as printed, e.g. \"1-Dec-2025\" or \"01/12/2025\".\n" +
	"- Use null for values that cannot be read.\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"{\" and end with \"}\".\n"

type generateFunc func(ctx context.Context, pdf []byte) (string, error)

type Extractor struct {
	model    string
	client   *genai.Client
	generate generateFunc
}

func NewExtractor(ctx context.Context, cfg config.Config) (*Extractor, error) {
	if err := cfg.Require("GEMINI_API_KEY", cfg.GeminiAPIKey); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	e := &Extractor{model: cfg.GeminiModel, client: client}
	e.generate = e.generateContent
	return e, nil
}

// Prepare checks that the configured model is reachable.
func (e *Extractor) Prepare(ctx context.Context) error {
	if e.client == nil {
		return nil
	}
	if _, err := e.client.Models.Get(ctx, e.model, nil); err != nil {
		return fmt.Errorf("gemini model %q: %w", e.model, err)
	}
	return nil
}

func (e *Extractor) Extract(ctx context.Context, path string) (internal.RawExtraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	text, err := e.generate(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty response from model")
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleanModelJSON(text)), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal model JSON: %w", err)
	}
	return internal.RawExtraction(parsed), nil
}

func (e *Extractor) generateContent(ctx context.Context, pdf []byte) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{InlineData: &genai.Blob{MIMEType: "application/pdf", Data: pdf}},
			},
		},
	}
	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// cleanModelJSON strips code fences and anything outside the outermost
// object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
