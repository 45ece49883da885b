package gen

import (
	"fmt"

	"adcampaign-controlplane/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gen", fx.Provide(NewNode))

// NewNode builds the process snowflake node from SNOWFLAKE.NODE. Every
// replica needs its own node id.
func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.Snowflake.Node)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node %d: %w", cfg.Snowflake.Node, err)
	}
	zap.L().Info("[Snowflake] node ready", zap.Int64("node", cfg.Snowflake.Node))
	return node, nil
}
