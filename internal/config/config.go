package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"payadvice/internal"
)

type MailConfig struct {
	Sender       string
	SearchTerm   string
	DaysBack     int
	MaxResults   int
	BaseFolderID string
}

func (m MailConfig) Criteria() internal.SearchCriteria {
	return internal.SearchCriteria{
		Sender:     m.Sender,
		SearchTerm: m.SearchTerm,
		DaysBack:   m.DaysBack,
		MaxResults: m.MaxResults,
	}
}

type AdviceConfig struct {
	DriveFolderID string
	SpreadsheetID string
	SheetRange    string
	DaysBack      int
	MaxFiles      int
	SkipExisting  bool
}

func (a AdviceConfig) Table() internal.TableRef {
	return internal.TableRef{SpreadsheetID: a.SpreadsheetID, Range: a.SheetRange}
}

type AuditConfig struct {
	SpreadsheetID string
	SheetRange    string
}

func (a AuditConfig) Table() internal.TableRef {
	return internal.TableRef{SpreadsheetID: a.SpreadsheetID, Range: a.SheetRange}
}

type Config struct {
	DBPath      string
	LogCapacity int

	Mail   MailConfig
	Advice AdviceConfig
	Audit  AuditConfig

	MailProvider string
	BlobBackend  string
	TableBackend string
	Extractor    string

	GCSBucket string
	XLSXPath  string

	LlamaAPIKey       string
	LlamaAgent        string
	LlamaBaseURL      string
	LlamaPollInterval time.Duration
	LlamaTimeout      time.Duration
	LlamaRateLimitRPS int

	GeminiAPIKey string
	GeminiModel  string

	ExtractRetries    int
	ExtractRetryDelay time.Duration
	AppendRetries     int
	AppendRetryDelay  time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GoogleRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMailbox  string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:      getEnv("DB_PATH", filepath.Join(cwd, "data", "payadvice.db")),
		LogCapacity: getEnvInt("LOG_CAPACITY", 200),

		Mail: MailConfig{
			Sender:       getEnv("MAIL_SENDER", "erp@namdharis.in"),
			SearchTerm:   getEnv("MAIL_SEARCH_TERM", "Payment Advice"),
			DaysBack:     getEnvInt("MAIL_DAYS_BACK", 30),
			MaxResults:   getEnvInt("MAIL_MAX_RESULTS", 50),
			BaseFolderID: getEnv("MAIL_BASE_FOLDER_ID", ""),
		},
		Advice: AdviceConfig{
			DriveFolderID: getEnv("ADVICE_FOLDER_ID", getEnv("MAIL_BASE_FOLDER_ID", "")),
			SpreadsheetID: getEnv("ADVICE_SPREADSHEET_ID", ""),
			SheetRange:    getEnv("ADVICE_SHEET_RANGE", "payment_advice"),
			DaysBack:      getEnvInt("ADVICE_DAYS_BACK", 30),
			MaxFiles:      getEnvInt("ADVICE_MAX_FILES", 25),
			SkipExisting:  getEnvBool("ADVICE_SKIP_EXISTING", true),
		},
		Audit: AuditConfig{
			SpreadsheetID: getEnv("AUDIT_SPREADSHEET_ID", getEnv("ADVICE_SPREADSHEET_ID", "")),
			SheetRange:    getEnv("AUDIT_SHEET_RANGE", "workflow_logs"),
		},

		MailProvider: strings.ToLower(getEnv("MAIL_PROVIDER", "gmail")),
		BlobBackend:  strings.ToLower(getEnv("BLOB_BACKEND", "drive")),
		TableBackend: strings.ToLower(getEnv("TABLE_BACKEND", "sheets")),
		Extractor:    strings.ToLower(getEnv("EXTRACTOR", "llama")),

		GCSBucket: getEnv("GCS_BUCKET", ""),
		XLSXPath:  getEnv("XLSX_PATH", filepath.Join(cwd, "out", "payment_advice.xlsx")),

		LlamaAPIKey:       getEnv("LLAMA_API_KEY", ""),
		LlamaAgent:        getEnv("LLAMA_AGENT", ""),
		LlamaBaseURL:      getEnv("LLAMA_BASE_URL", "https://api.cloud.llamaindex.ai"),
		LlamaPollInterval: getEnvMillis("LLAMA_POLL_INTERVAL_MS", 2000),
		LlamaTimeout:      getEnvMillis("LLAMA_TIMEOUT_MS", 300000),
		LlamaRateLimitRPS: getEnvInt("LLAMA_RATE_LIMIT_RPS", 5),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		ExtractRetries:    getEnvInt("EXTRACT_RETRIES", 3),
		ExtractRetryDelay: getEnvMillis("EXTRACT_RETRY_DELAY_MS", 2000),
		AppendRetries:     getEnvInt("APPEND_RETRIES", 3),
		AppendRetryDelay:  getEnvMillis("APPEND_RETRY_DELAY_MS", 2000),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GoogleRefreshToken: getEnv("GOOGLE_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMailbox:  getEnv("IMAP_MAILBOX", "INBOX"),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
