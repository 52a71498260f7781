// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// ErrConfiguration is the kind of every error caused by invalid parameters.
const ErrConfiguration = errors.ConstError("invalid configuration")

// Config is the configuration for the recommender.
type Config struct {
	Similarity   SimilarityConfig   `mapstructure:"similarity"`
	Neighborhood NeighborhoodConfig `mapstructure:"neighborhood"`
	Recommend    RecommendConfig    `mapstructure:"recommend"`
}

// SimilarityConfig is the configuration for the similarity table.
type SimilarityConfig struct {
	MinCoRaters    int  `mapstructure:"min_co_raters" validate:"gte=1"`
	NumJobs        int  `mapstructure:"num_jobs" validate:"gte=1"`
	RefreshOnWrite bool `mapstructure:"refresh_on_write"`
}

// NeighborhoodConfig is the configuration for neighbor selection.
type NeighborhoodConfig struct {
	Size      int     `mapstructure:"size" validate:"gt=0"`
	Threshold float64 `mapstructure:"threshold" validate:"gte=-1,lte=1"`
}

// RecommendConfig is the configuration for ranking.
type RecommendConfig struct {
	TopN int `mapstructure:"top_n" validate:"gt=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Similarity: SimilarityConfig{
			MinCoRaters:    1,
			NumJobs:        runtime.NumCPU(),
			RefreshOnWrite: true,
		},
		Neighborhood: NeighborhoodConfig{
			Size:      20,
			Threshold: 0,
		},
		Recommend: RecommendConfig{
			TopN: 10,
		},
	}
}

// Validate checks every parameter. The returned error is of kind ErrConfiguration.
func (config *Config) Validate() error {
	if config == nil {
		return errors.Annotate(ErrConfiguration, "config is nil")
	}
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Annotate(ErrConfiguration, err.Error())
	}
	return nil
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [similarity]
	v.SetDefault("similarity.min_co_raters", defaultConfig.Similarity.MinCoRaters)
	v.SetDefault("similarity.num_jobs", defaultConfig.Similarity.NumJobs)
	v.SetDefault("similarity.refresh_on_write", defaultConfig.Similarity.RefreshOnWrite)
	// [neighborhood]
	v.SetDefault("neighborhood.size", defaultConfig.Neighborhood.Size)
	v.SetDefault("neighborhood.threshold", defaultConfig.Neighborhood.Threshold)
	// [recommend]
	v.SetDefault("recommend.top_n", defaultConfig.Recommend.TopN)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefault(v)
	// ICF_SIMILARITY_MIN_CO_RATERS overrides similarity.min_co_raters
	v.SetEnvPrefix("icf")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads configuration from a TOML file. Missing keys take default values and
// environment variables take precedence over the file. An empty path loads defaults and
// environment variables only.
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}
