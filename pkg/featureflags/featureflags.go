package featureflags

import (
	"context"

	"adcampaign-controlplane/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

const (
	// UniformNotFound reports out-of-scope denials as not found so callers
	// cannot probe which resources exist in other companies.
	UniformNotFound = "uniform_not_found"
)

type FeatureFlag interface {
	Enabled(ctx context.Context, name string) bool
	Flags(ctx context.Context, identifier string, traits ...*flagsmith.Trait) (flagsmith.Flags, error)
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	opts := []flagsmith.Option{
		flagsmith.WithAnalytics(),
	}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

// Static returns flags fixed in memory, every flag not listed is off.
func Static(enabled ...string) FeatureFlag {
	set := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		set[name] = true
	}
	return staticFlags(set)
}

type staticFlags map[string]bool

func (s staticFlags) Enabled(_ context.Context, name string) bool { return s[name] }

func (s staticFlags) Flags(context.Context, string, ...*flagsmith.Trait) (flagsmith.Flags, error) {
	return flagsmith.Flags{}, nil
}

// Enabled reports false when flagsmith is not configured or unreachable.
func (s *featureflag) Enabled(ctx context.Context, name string) bool {
	if s.client == nil {
		return false
	}

	flags, err := s.client.GetEnvironmentFlags()
	if err != nil {
		zap.L().Warn("flagsmith unavailable", zap.String("flag", name), zap.Error(err))
		return false
	}

	on, err := flags.IsFeatureEnabled(name)
	if err != nil {
		return false
	}
	return on
}

func (s *featureflag) Flags(ctx context.Context, identifier string, traits ...*flagsmith.Trait) (flagsmith.Flags, error) {
	if s.client == nil {
		return flagsmith.Flags{}, nil
	}

	var traitSlice []*flagsmith.Trait
	if len(traits) > 0 {
		traitSlice = traits
	}

	return s.client.GetIdentityFlags(identifier, traitSlice)
}
