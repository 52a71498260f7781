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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"unicode/utf8"

	"github.com/gorse-io/icf/base/log"
	"github.com/gorse-io/icf/config"
	"github.com/gorse-io/icf/dataset"
	"github.com/gorse-io/icf/engine"
	"github.com/gorse-io/icf/similarity"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var recommender *engine.Recommender

var rootCommand = &cobra.Command{
	Use:   "icf",
	Short: "Item-based collaborative filtering over a ratings file.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// setup logger
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)

		// load config
		configPath, _ := cmd.Flags().GetString("config")
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			return errors.Trace(err)
		}
		recommender, err = engine.NewRecommender(conf)
		if err != nil {
			return errors.Trace(err)
		}

		// load ratings
		ratingsPath, _ := cmd.Flags().GetString("ratings")
		if ratingsPath == "" {
			return errors.NotValidf("empty ratings path")
		}
		var opts dataset.CSVOptions
		sep, _ := cmd.Flags().GetString("sep")
		if utf8.RuneCountInString(sep) != 1 {
			return errors.NotValidf("separator %q", sep)
		}
		opts.Separator, _ = utf8.DecodeRuneInString(sep)
		opts.Header, _ = cmd.Flags().GetBool("header")
		opts.Progress, _ = cmd.Flags().GetBool("progress")
		ratings, err := dataset.LoadCSV(ratingsPath, opts)
		if err != nil {
			return errors.Trace(err)
		}
		log.Logger().Info("load ratings",
			zap.String("path", ratingsPath),
			zap.Int("n_ratings", len(ratings)))

		// build similarities
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return recommender.Load(ctx, ratings...)
	},
}

var recommendCommand = &cobra.Command{
	Use:   "recommend user_id",
	Short: "Recommend items for a user.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("n")
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("item_id", "prediction", "neighbors")
		for _, prediction := range recommender.Snapshot().Recommend(args[0], n) {
			if err := table.Append([]string{
				prediction.ItemId,
				fmt.Sprintf("%.4f", prediction.Value),
				fmt.Sprint(prediction.Confidence),
			}); err != nil {
				return errors.Trace(err)
			}
		}
		return table.Render()
	},
}

var predictCommand = &cobra.Command{
	Use:   "predict user_id item_id",
	Short: "Predict the rating of a user on an item.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		prediction, err := recommender.Snapshot().Predict(args[0], args[1])
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Printf("%.4f (%d neighbors)\n", prediction.Value, prediction.Confidence)
		return nil
	},
}

var neighborsCommand = &cobra.Command{
	Use:   "neighbors item_id",
	Short: "List the most similar items of an item.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("k")
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("item_id", "similarity", "co_raters")
		for _, neighbor := range recommender.Snapshot().Neighbors(args[0], k) {
			if err := table.Append([]string{
				neighbor.ItemId,
				fmt.Sprintf("%.4f", neighbor.Similarity),
				fmt.Sprint(neighbor.CoRaters),
			}); err != nil {
				return errors.Trace(err)
			}
		}
		return table.Render()
	},
}

var relatedCommand = &cobra.Command{
	Use:   "related [item_id]",
	Short: "List items most often rated together with an item, or with every item.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("n")
		var associations []similarity.Association
		if len(args) == 1 {
			associations = recommender.Snapshot().Related(args[0], n)
		} else {
			all, err := recommender.RelatedAll(cmd.Context(), n)
			if err != nil {
				return errors.Trace(err)
			}
			items := lo.Keys(all)
			sort.Strings(items)
			for _, item := range items {
				associations = append(associations, all[item]...)
			}
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("item_id", "related_id", "actual", "expected", "score")
		for _, association := range associations {
			if err := table.Append([]string{
				association.ItemId,
				association.Related,
				fmt.Sprint(association.Actual),
				fmt.Sprintf("%.4f", association.Expected),
				fmt.Sprintf("%.4f", association.Score),
			}); err != nil {
				return errors.Trace(err)
			}
		}
		return table.Render()
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.PersistentFlags().StringP("ratings", "r", "", "ratings file path")
	rootCommand.PersistentFlags().String("sep", ",", "separator of the ratings file")
	rootCommand.PersistentFlags().Bool("header", false, "skip the first line of the ratings file")
	rootCommand.PersistentFlags().Bool("progress", false, "show progress while loading ratings")
	recommendCommand.Flags().IntP("n", "n", 0, "number of recommendations (0 for the configured top-N)")
	relatedCommand.Flags().IntP("n", "n", 0, "number of related items per item (0 for the configured top-N)")
	neighborsCommand.Flags().IntP("k", "k", 20, "number of neighbors")
	rootCommand.AddCommand(recommendCommand, predictCommand, neighborsCommand, relatedCommand)
}

func main() {
	if err := rootCommand.ExecuteContext(context.Background()); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
