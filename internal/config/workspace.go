package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/oppsbot/pkg/log"
)

// WorkspaceConfig describes the presales file conventions the
// assistant is prompted with: where proposal templates live and how
// opportunity folders are named.
type WorkspaceConfig struct {
	CompanyName      string `env:"COMPANY_NAME" envDefault:"the company"`
	WorkshareFolder  string `env:"WORKSHARE_FOLDER" envDefault:"workshare"`
	ProposalTemplate string `env:"PROPOSAL_TEMPLATE" envDefault:"proposal.docx"`
}

func NewWorkspaceConfig(ctx context.Context) *WorkspaceConfig {
	c := &WorkspaceConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Workspace config")
	}
	return c
}

// TemplateDir is the folder holding the current proposal templates.
func (c WorkspaceConfig) TemplateDir() string {
	return filepath.Join(c.WorkshareFolder, "00 Latest Templates", "Proposal Template", "01 Development Proposal")
}

// OpportunityDir is the canonical folder for one opportunity:
// <workshare>/<customer>/<opportunity name>.
func (c WorkspaceConfig) OpportunityDir(customer, oppName string) string {
	return filepath.Join(c.WorkshareFolder, customer, oppName)
}
