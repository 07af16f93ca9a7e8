package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"studio-backend/internal/credits"
	"studio-backend/internal/llm"
	"studio-backend/internal/shared/config"
)

func newTestCLI(t *testing.T, svc *credits.Service) (*cli, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := config.Config{SignupCredits: 20}
	cfg.Vendors.OpenAIAPIKey = "sk-test"
	c := newCLI(cfg, &out)
	c.openCredits = func(ctx context.Context) (*credits.Service, func(), error) {
		return svc, func() {}, nil
	}
	return c, &out
}

func run(c *cli, args ...string) error {
	root := c.rootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func TestEnginesListsPricesAndConfiguration(t *testing.T) {
	c, out := newTestCLI(t, credits.NewService(0))

	if err := run(c, "engines", "--kind", "video"); err != nil {
		t.Fatalf("engines: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "sora") || !strings.Contains(text, "klingai") {
		t.Fatalf("missing video engines:\n%s", text)
	}
	if strings.Contains(text, "dalle3") {
		t.Fatalf("image engine listed under video:\n%s", text)
	}
}

func TestEnginesRejectsUnknownKind(t *testing.T) {
	c, _ := newTestCLI(t, credits.NewService(0))
	if err := run(c, "engines", "--kind", "hologram"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestCreditsGrantAndShow(t *testing.T) {
	svc := credits.NewService(20)
	c, out := newTestCLI(t, svc)

	if err := run(c, "credits", "grant", "google:1", "30", "--reference", "ticket-9"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !strings.Contains(out.String(), "balance 50") {
		t.Fatalf("unexpected grant output: %s", out.String())
	}

	out.Reset()
	if err := run(c, "credits", "show", "google:1"); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out.String(), "50 credits") || !strings.Contains(out.String(), "ticket-9") {
		t.Fatalf("unexpected show output: %s", out.String())
	}
}

func TestCreditsGrantValidatesAmount(t *testing.T) {
	c, _ := newTestCLI(t, credits.NewService(0))
	if err := run(c, "credits", "grant", "google:1", "-5"); err == nil {
		t.Fatalf("expected error for negative grant")
	}
}

type echoEnhancer struct{}

func (echoEnhancer) Enhance(ctx context.Context, in llm.EnhanceInput) (llm.EnhanceOutput, error) {
	return llm.EnhanceOutput{Prompt: in.Kind + ": " + in.Prompt, Model: "echo"}, nil
}

func TestEnhancePrintsJSON(t *testing.T) {
	c, out := newTestCLI(t, credits.NewService(0))
	c.enhancer = func() (llm.Enhancer, error) { return echoEnhancer{}, nil }

	if err := run(c, "enhance", "--kind", "video", "a", "cat"); err != nil {
		t.Fatalf("enhance: %v", err)
	}
	if !strings.Contains(out.String(), `"prompt": "video: a cat"`) {
		t.Fatalf("unexpected output: %s", out.String())
	}
}
