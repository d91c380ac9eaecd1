package main

import (
	"fmt"
	"strings"

	"github.com/ferrychris/policyweb-sub000/internal/catalog"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/spf13/cobra"
)

func newPackagesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "packages",
		Short: "List subscription packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.render(cmd.OutOrStdout(), packagesMarkdown(catalog.Default.ListPackages()))
		},
	}
}

func newTypesCmd(c *cli) *cobra.Command {
	var pkg string
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List policy types, optionally only those a package includes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *domain.Package
			if pkg != "" {
				p, ok := catalog.Default.GetPackage(domain.PackageKey(pkg))
				if !ok {
					return fmt.Errorf("%w: %s", domain.ErrUnknownPackage, pkg)
				}
				filter = p
			}
			return c.render(cmd.OutOrStdout(), typesMarkdown(catalog.Default.PolicyTypes(), filter))
		},
	}
	cmd.Flags().StringVarP(&pkg, "package", "p", "", "package key (basic, professional, premium)")
	return cmd
}

func packagesMarkdown(pkgs []domain.Package) string {
	var b strings.Builder
	b.WriteString("# Packages\n\n")
	b.WriteString("| Key | Name | Price | Policies |\n|---|---|---|---|\n")
	for _, p := range pkgs {
		fmt.Fprintf(&b, "| `%s` | %s | $%d | %s |\n", p.Key, p.Name, p.Price, limitText(p.PolicyLimit))
	}
	for _, p := range pkgs {
		fmt.Fprintf(&b, "\n## %s\n\n", p.Name)
		for _, f := range p.Features {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}

func typesMarkdown(types []domain.PolicyType, pkg *domain.Package) string {
	var b strings.Builder
	b.WriteString("# Policy types\n\n")
	if pkg != nil {
		fmt.Fprintf(&b, "Included in **%s**.\n\n", pkg.Name)
	}
	b.WriteString("| ID | Title | Tier | Templates |\n|---|---|---|---|\n")
	for _, t := range types {
		if pkg != nil && !pkg.Allows(t.ID) {
			continue
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", t.ID, t.Title, t.Tier, strings.Join(t.Templates, ", "))
	}
	return b.String()
}

func limitText(limit int) string {
	if limit == domain.Unlimited {
		return "Unlimited"
	}
	return fmt.Sprint(limit)
}
