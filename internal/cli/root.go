package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mathforge/internal/cache"
	"mathforge/internal/config"
	"mathforge/internal/display"
	"mathforge/internal/gateway"
	"mathforge/internal/logger"
	"mathforge/internal/mathverify"
	"mathforge/internal/observe"
	"mathforge/internal/pipeline"
	"mathforge/internal/state"
	"mathforge/internal/texc"
)

var (
	flagConfig       string
	flagGrade        string
	flagTopic        string
	flagMaterial     string
	flagDifficulty   string
	flagLanguage     string
	flagExercises    int
	flagTheory       bool
	flagExamples     bool
	flagSolutions    bool
	flagInstructions string
	flagRegenerate   bool
	flagOut          string
	flagEstimateOnly bool
)

var rootCmd = &cobra.Command{
	Use:   "mathforge",
	Short: "Verified math teaching material generator",
	Long: `Generates curriculum-aligned math teaching material through a
verification-driven agent pipeline: every equation is checked
symbolically and every document must compile before it is returned.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagTopic != "" {
			return runOneShot(cfg)
		}
		return runInteractive(cfg)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "mathforge.yaml", "config file path")
	rootCmd.Flags().StringVar(&flagGrade, "grade", "8", "grade level")
	rootCmd.Flags().StringVar(&flagTopic, "topic", "", "topic (one-shot mode when set)")
	rootCmd.Flags().StringVar(&flagMaterial, "type", "worksheet", "material type: worksheet|chapter|exam")
	rootCmd.Flags().StringVar(&flagDifficulty, "difficulty", "medium", "difficulty: easy|medium|hard")
	rootCmd.Flags().StringVar(&flagLanguage, "language", "standard", "language register: standard|b2|b1")
	rootCmd.Flags().IntVar(&flagExercises, "exercises", 8, "number of exercises")
	rootCmd.Flags().BoolVar(&flagTheory, "theory", true, "include a theory section")
	rootCmd.Flags().BoolVar(&flagExamples, "examples", true, "include worked examples")
	rootCmd.Flags().BoolVar(&flagSolutions, "solutions", true, "include a solutions section")
	rootCmd.Flags().StringVar(&flagInstructions, "instructions", "", "free-text extra instructions")
	rootCmd.Flags().BoolVar(&flagRegenerate, "regenerate", false, "bypass the whole-pipeline cache")
	rootCmd.Flags().StringVar(&flagOut, "out", "material.tex", "output path for the generated document")
	rootCmd.Flags().BoolVar(&flagEstimateOnly, "estimate", false, "print the token estimate and exit")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func requestFromFlags() state.Request {
	return state.Request{
		Grade:             flagGrade,
		Topic:             flagTopic,
		MaterialType:      flagMaterial,
		LanguageLevel:     flagLanguage,
		Difficulty:        flagDifficulty,
		NumExercises:      flagExercises,
		IncludeTheory:     flagTheory,
		IncludeExamples:   flagExamples,
		IncludeSolutions:  flagSolutions,
		ExtraInstructions: flagInstructions,
	}
}

// buildStack wires the shared components from configuration.
func buildStack(cfg *config.Config) (*pipeline.Manager, *cache.Cache, error) {
	providers := make(map[string]gateway.Provider)
	provider := func(name string) (gateway.Provider, error) {
		if p, ok := providers[name]; ok {
			return p, nil
		}
		p, err := gateway.NewProvider(name, gateway.ProviderConfig{
			OllamaHost: os.Getenv("OLLAMA_HOST"),
		})
		if err != nil {
			return nil, err
		}
		providers[name] = p
		return p, nil
	}

	chain := func(refs []config.BackendRef) []gateway.Backend {
		var out []gateway.Backend
		for _, ref := range refs {
			p, err := provider(ref.Backend)
			if err != nil {
				logger.Log.Printf("[CLI] backend %s unavailable: %v", ref.Backend, err)
				continue
			}
			out = append(out, gateway.Backend{Provider: p, Model: ref.Model})
		}
		return out
	}

	fallback := chain(cfg.Gateway.Default)
	if len(fallback) == 0 {
		return nil, nil, fmt.Errorf("no gateway backend available; check GEMINI_API_KEY / OLLAMA_HOST")
	}
	routes := make(map[state.Role][]gateway.Backend)
	for role, refs := range cfg.Gateway.Roles {
		if bs := chain(refs); len(bs) > 0 {
			routes[state.Role(role)] = bs
		}
	}

	gw, err := gateway.New(fallback, routes, cfg.Retry.GatewayTransient)
	if err != nil {
		return nil, nil, err
	}

	compiler := texc.New(texc.Options{
		Bin:        cfg.Compiler.Bin,
		Workers:    cfg.Compiler.Workers,
		QueueDepth: cfg.Compiler.QueueDepth,
		Timeout:    cfg.CompileTimeout(),
	})
	checker := mathverify.NewChecker(cfg.Verification.Epsilon)
	store := cache.New(cache.Options{
		Capacity:  cfg.Cache.Capacity,
		MaxAge:    cfg.CacheMaxAge(),
		Threshold: cfg.Cache.SimilarityThreshold,
	})
	rec := observe.NewRecorder()

	engine := pipeline.NewEngine(gw, compiler, checker, store, rec, cfg)
	return pipeline.NewManager(engine, rec), store, nil
}

func runOneShot(cfg *config.Config) error {
	req := requestFromFlags()
	if flagEstimateOnly {
		fmt.Println(display.FormatEstimate(cache.EstimateTokens(req)))
		return nil
	}

	mgr, _, err := buildStack(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id := mgr.Start(ctx, req, flagRegenerate)
	fmt.Printf("Job %s started\n", id)

	stream, err := mgr.Stream(id)
	if err != nil {
		return err
	}
	for ev := range stream {
		if line := display.FormatEvent(ev); line != "" {
			fmt.Println(line)
		}
	}

	final, err := mgr.Result(id)
	if err != nil {
		return err
	}
	fmt.Println(display.FormatResult(final))

	if final.Status == state.StatusCompleted && flagOut != "" {
		if err := os.WriteFile(flagOut, []byte(final.FullDocument), 0644); err != nil {
			return fmt.Errorf("write %s: %w", flagOut, err)
		}
		fmt.Printf("Document written to %s\n", flagOut)
	}
	if final.Status == state.StatusFailed {
		return fmt.Errorf("generation failed: %s", final.FailReason)
	}
	return nil
}
