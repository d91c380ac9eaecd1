package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/catalog"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/engine"
	"github.com/ferrychris/policyweb-sub000/internal/entitlement"
	"github.com/ferrychris/policyweb-sub000/internal/export"
	"github.com/ferrychris/policyweb-sub000/internal/repository/memory"
	"github.com/ferrychris/policyweb-sub000/internal/wizard"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const localUser = "local"

type draftOptions struct {
	typeID  string
	pkg     string
	mode    string
	out     string
	format  string
	timeout time.Duration
	details domain.OrganizationDetails
}

func newDraftCmd(c *cli) *cobra.Command {
	o := &draftOptions{}
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Generate a policy draft locally",
		Long: `Walks the policy wizard locally (select, details, confirm) with the
configured provider and prints the draft. With --out the draft is published
to an in-process store and exported to a file instead; the format is taken
from --format or the file extension.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDraft(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.typeID, "type", "t", "", "policy type id")
	f.StringVarP(&o.pkg, "package", "p", string(domain.PackagePremium), "package whose entitlements apply")
	f.StringVar(&o.mode, "mode", "", "generation mode override (template or llm)")
	f.StringVarP(&o.out, "out", "o", "", "write the draft to a file")
	f.StringVar(&o.format, "format", "", "export format (md, html, docx)")
	f.DurationVar(&o.timeout, "timeout", 2*time.Minute, "overall generation timeout")

	f.StringVar(&o.details.CompanyName, "company", "", "company name")
	f.StringVar(&o.details.Website, "website", "", "company website")
	f.StringVar(&o.details.Email, "email", "", "contact email")
	f.StringVar(&o.details.Country, "country", "", "country of operation")
	f.StringVar(&o.details.Industry, "industry", "", "industry")
	f.StringVar((*string)(&o.details.AIMaturityLevel), "maturity", "", "AI maturity level")
	f.StringVar(&o.details.EffectiveDate, "effective-date", "", "effective date, YYYY-MM-DD")
	f.StringVar(&o.details.Template, "template", "", "template name")

	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func (c *cli) runDraft(cmd *cobra.Command, o *draftOptions) error {
	if _, ok := catalog.Default.GetPackage(domain.PackageKey(o.pkg)); !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownPackage, o.pkg)
	}

	gen := c.cfg.Generation
	if o.mode != "" {
		gen.Mode = o.mode
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	generator, err := engine.NewFromConfig(ctx, gen, nil, nil, c.logger)
	if err != nil {
		return err
	}

	// Тот же мастер, что и в API, но сессия живет только в этом процессе
	manager := wizard.NewManager(wizard.Deps{
		Types:     catalog.Default,
		Rules:     entitlement.NewResolver(catalog.Default),
		Generator: generator,
		Store:     memory.NewPolicyRepo(),
		Logger:    c.logger,
	}, o.timeout)
	actor := wizard.Actor{UserID: localUser, Package: domain.PackageKey(o.pkg)}

	s, err := manager.Start(ctx, actor)
	if err != nil {
		return err
	}
	steps := []func() (wizard.Session, error){
		func() (wizard.Session, error) { return manager.SelectType(ctx, actor, s.ID, o.typeID) },
		func() (wizard.Session, error) { return manager.SubmitDetails(ctx, actor, s.ID, o.details) },
		func() (wizard.Session, error) { return manager.Confirm(ctx, actor, s.ID) },
	}
	for _, step := range steps {
		if s, err = step(); err != nil {
			return describe(err)
		}
	}
	c.logger.Debug("draft generated", zap.String("policy_type", o.typeID), zap.Int("versions", len(s.History)))

	if o.out == "" {
		return c.render(cmd.OutOrStdout(), s.Draft)
	}

	policy, _, err := manager.Publish(ctx, actor, s.ID)
	if err != nil {
		return err
	}
	doc, err := export.NewExporter().Export(policy, formatFor(o.out, o.format))
	if err != nil {
		return err
	}
	if doc.Notice != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), doc.Notice)
	}
	if err := os.WriteFile(o.out, doc.Body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", o.out, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d bytes)\n", o.out, doc.Format, len(doc.Body))
	return nil
}

// formatFor: явный --format или расширение файла.
func formatFor(path, format string) string {
	if format != "" {
		return format
	}
	if i := strings.LastIndexByte(path, '.'); i >= 0 && i < len(path)-1 {
		return path[i+1:]
	}
	return string(export.FormatMarkdown)
}

// describe раскрывает ошибки полей в одну строку на поле.
func describe(err error) error {
	vErr, ok := domain.IsValidation(err)
	if !ok {
		return err
	}
	lines := make([]string, 0, len(vErr.Fields))
	for _, f := range vErr.Fields {
		lines = append(lines, fmt.Sprintf("  --%s: %s", flagName(f.Field), f.Message))
	}
	return fmt.Errorf("invalid organization details:\n%s", strings.Join(lines, "\n"))
}

func flagName(field string) string {
	switch field {
	case "policy_type":
		return "type"
	case "company_name":
		return "company"
	case "ai_maturity_level":
		return "maturity"
	default:
		return strings.ReplaceAll(field, "_", "-")
	}
}
