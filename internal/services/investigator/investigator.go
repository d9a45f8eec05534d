// Package investigator implements C9: an optional LLM-driven root-cause
// query loop that runs against newly created alerts, issuing SQL
// tool-calls against the analytic store and persisting a structured
// root-cause summary.
package investigator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"telemetry-pipeline/internal/config"
	"telemetry-pipeline/internal/domain/engine"
	"telemetry-pipeline/pkg/ulid"
)

const (
	maxToolIterations = 5
	maxSQLRows        = 20
)

// Store is the subset of the analytic store C9 needs: the SQL execution
// tool, the gating reads, and the write-back.
type Store interface {
	QueryJSON(ctx context.Context, sqlText string, maxRows int) ([]map[string]any, error)
	RecentInvestigationTimestamps(ctx context.Context, since time.Time) ([]time.Time, error)
	LastInvestigationForService(ctx context.Context, serviceName string) (*time.Time, error)
	InvestigationExists(ctx context.Context, alertID string) (bool, error)
	InsertInvestigation(ctx context.Context, row engine.AlertInvestigationRow) bool
}

// Investigator runs the gated, rate-limited root-cause loop for new alerts.
type Investigator struct {
	store  Store
	client anthropic.Client
	cfg    *config.LLMConfig
	logger *slog.Logger
}

func New(store Store, cfg *config.LLMConfig, logger *slog.Logger) *Investigator {
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Investigator{store: store, client: client, cfg: cfg, logger: logger}
}

// Investigate runs the gated loop for one newly-created alert. It never
// returns an error to the caller: every failure is logged and the alert
// is left exactly as it was (spec §4.9: "best-effort ... aborts silently").
func (inv *Investigator) Investigate(ctx context.Context, alert engine.AlertRow) {
	if !inv.cfg.Enabled {
		return
	}
	if inv.cfg.InvestigateCriticalOnly && alert.Severity != engine.SeverityCritical {
		return
	}

	allowed, err := inv.checkGates(ctx, alert)
	if err != nil {
		inv.logger.Error("investigation gate check failed", "alert_id", alert.AlertID, "error", err)
		return
	}
	if !allowed {
		return
	}

	result, err := inv.run(ctx, alert)
	if err != nil {
		inv.logger.Error("investigation failed", "alert_id", alert.AlertID, "error", err)
		return
	}

	row := engine.AlertInvestigationRow{
		InvestigationID:    ulid.NewShortHex(),
		AlertID:            alert.AlertID,
		InvestigatedAt:     time.Now().UTC(),
		ServiceName:        alert.ServiceName,
		AlertType:          alert.AlertType,
		ModelUsed:          inv.cfg.Model,
		RootCauseSummary:   result.rootCause,
		RecommendedActions: result.recommendedActions,
		SupportingEvidence: result.evidence,
		QueriesExecuted:    int32(result.queriesExecuted),
		TokensUsed:         int32(result.tokensUsed),
	}
	if !inv.store.InsertInvestigation(ctx, row) {
		inv.logger.Error("failed to persist investigation", "alert_id", alert.AlertID)
	}
}

func (inv *Investigator) checkGates(ctx context.Context, alert engine.AlertRow) (bool, error) {
	exists, err := inv.store.InvestigationExists(ctx, alert.AlertID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	since := time.Now().UTC().Add(-1 * time.Hour)
	recent, err := inv.store.RecentInvestigationTimestamps(ctx, since)
	if err != nil {
		return false, err
	}
	if len(recent) >= inv.cfg.MaxInvestigationsPerHour {
		return false, nil
	}

	last, err := inv.store.LastInvestigationForService(ctx, alert.ServiceName)
	if err != nil {
		return false, err
	}
	if last != nil && time.Since(*last) < inv.cfg.ServiceCooldown() {
		return false, nil
	}
	return true, nil
}

type loopResult struct {
	rootCause          string
	evidence           string
	recommendedActions string
	queriesExecuted    int
	tokensUsed         int
}

const systemPrompt = `You are investigating an anomaly in a distributed system's telemetry.
You have access to an execute_sql tool against a ClickHouse analytic store with
tables: logs, metrics, spans, span_events, span_links, service_baselines,
anomaly_scores, alerts, alert_investigations. Use it to gather evidence about
the alert described by the user. Keep queries narrow and prefer recent time
windows. You may call the tool multiple times before concluding.`

func alertFacts(alert engine.AlertRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert for service %q.\n", alert.ServiceName)
	fmt.Fprintf(&b, "Type: %s, Severity: %s\n", alert.AlertType, alert.Severity)
	fmt.Fprintf(&b, "Metric: %s, current=%.4f, baseline=%.4f, threshold=%.4f, z_score=%.2f\n",
		alert.MetricType, alert.CurrentValue, alert.BaselineValue, alert.ThresholdValue, alert.ZScore)
	b.WriteString("Investigate the likely root cause using execute_sql.")
	return b.String()
}

const executeSQLSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "A SELECT statement to run against the analytic store."}
	},
	"required": ["query"]
}`

func executeSQLToolParam() (anthropic.ToolUnionParam, error) {
	var schema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal([]byte(executeSQLSchema), &schema); err != nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("investigator: invalid execute_sql schema: %w", err)
	}
	toolParam := anthropic.ToolUnionParamOfTool(schema, "execute_sql")
	if toolParam.OfTool == nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("investigator: missing tool definition for execute_sql")
	}
	toolParam.OfTool.Description = anthropic.String("Run a read-only SQL SELECT against the analytic store and get back up to 20 rows of JSON.")
	return toolParam, nil
}

func (inv *Investigator) run(ctx context.Context, alert engine.AlertRow) (loopResult, error) {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(alertFacts(alert))),
	}
	result := loopResult{}

	maxTokens := int64(inv.cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	tool, err := executeSQLToolParam()
	if err != nil {
		return result, err
	}

	for iter := 0; iter < maxToolIterations; iter++ {
		msg, err := inv.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(inv.cfg.Model),
			MaxTokens: maxTokens,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages:  messages,
			Tools:     []anthropic.ToolUnionParam{tool},
		})
		if err != nil {
			return result, fmt.Errorf("investigator: completion failed: %w", err)
		}
		result.tokensUsed += int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
		messages = append(messages, msg.ToParam())

		toolUses := extractToolUses(msg)
		if len(toolUses) == 0 {
			break
		}

		var resultBlocks []anthropic.ContentBlockParamUnion
		for _, tu := range toolUses {
			var args struct {
				Query string `json:"query"`
			}
			_ = json.Unmarshal(tu.Input, &args)
			result.queriesExecuted++
			output, isErr := inv.runSQLTool(ctx, args.Query)
			resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(tu.ID, output, isErr))
		}
		messages = append(messages, anthropic.NewUserMessage(resultBlocks...))
	}

	final, err := inv.finalCompletion(ctx, messages, maxTokens)
	if err != nil {
		return result, err
	}
	result.tokensUsed += final.tokens
	rootCause, evidence, actions := parseFinalAnswer(final.text)
	result.rootCause, result.evidence, result.recommendedActions = rootCause, evidence, actions
	return result, nil
}

type finalText struct {
	text   string
	tokens int
}

func (inv *Investigator) finalCompletion(ctx context.Context, messages []anthropic.MessageParam, maxTokens int64) (finalText, error) {
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(
		"Conclude now without further tool calls. Respond in exactly this format:\n"+
			"ROOT CAUSE: <one paragraph>\nEVIDENCE: <one paragraph>\nRECOMMENDED ACTIONS: <one paragraph>")))

	msg, err := inv.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(inv.cfg.Model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  messages,
	})
	if err != nil {
		return finalText{}, fmt.Errorf("investigator: final completion failed: %w", err)
	}
	return finalText{text: textOf(msg), tokens: int(msg.Usage.InputTokens + msg.Usage.OutputTokens)}, nil
}

func (inv *Investigator) runSQLTool(ctx context.Context, query string) (string, bool) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(query), ";")
	if !isSelectOnly(trimmed) {
		return "error: only SELECT/WITH statements are permitted", true
	}
	rows, err := inv.store.QueryJSON(ctx, trimmed, maxSQLRows)
	if err != nil {
		return fmt.Sprintf("error: %v", err), true
	}
	return formatRows(rows), false
}

func isSelectOnly(sqlText string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sqlText))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

func formatRows(rows []map[string]any) string {
	if len(rows) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteString("[")
	for i, row := range rows {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("{")
		j := 0
		for k, v := range row {
			if j > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "%q:%q", k, fmt.Sprint(v))
			j++
		}
		b.WriteString("}")
	}
	b.WriteString("]")
	return b.String()
}

func extractToolUses(msg *anthropic.Message) []anthropic.ToolUseBlock {
	var out []anthropic.ToolUseBlock
	for _, block := range msg.Content {
		if tu := block.AsToolUse(); tu.Type == "tool_use" {
			out = append(out, tu)
		}
	}
	return out
}

func textOf(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if tb := block.AsText(); tb.Type == "text" {
			b.WriteString(tb.Text)
		}
	}
	return b.String()
}

func parseFinalAnswer(text string) (rootCause, evidence, actions string) {
	rootCause = sectionOf(text, "ROOT CAUSE:", "EVIDENCE:")
	evidence = sectionOf(text, "EVIDENCE:", "RECOMMENDED ACTIONS:")
	actions = sectionOf(text, "RECOMMENDED ACTIONS:", "")

	if rootCause == "" {
		rootCause = firstSentence(text)
	}
	return rootCause, evidence, actions
}

func sectionOf(text, start, end string) string {
	idx := strings.Index(text, start)
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(start):]
	if end != "" {
		if endIdx := strings.Index(rest, end); endIdx >= 0 {
			rest = rest[:endIdx]
		}
	}
	return strings.TrimSpace(rest)
}

func firstSentence(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	if idx := strings.IndexAny(trimmed, ".\n"); idx >= 0 {
		return strings.TrimSpace(trimmed[:idx+1])
	}
	return trimmed
}
