package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Arthur-Meier/AgroTech/internal/storage"
	"github.com/spf13/cobra"
)

func newAnimalCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "animal",
		Aliases: []string{"animals"},
		Short:   "Herd record management",
	}
	cmd.AddCommand(
		newAnimalListCommand(deps),
		newAnimalShowCommand(deps),
		newAnimalUpsertCommand(deps),
	)
	return cmd
}

func newAnimalListCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List animals, most recently updated first",
		Example: "  agrotech animal ls\n" +
			"  agrotech --json animal ls",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("animal ls does not accept positional arguments")
			}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *session) error {
				items, err := s.repo.ListAnimals(ctx)
				if err != nil {
					return err
				}

				if deps.globals.JSON {
					records := make([]storage.AnimalRecord, 0, len(items))
					for _, a := range items {
						records = append(records, storage.ToRecord(a))
					}
					return printJSON(deps.out, records)
				}
				if deps.globals.Quiet {
					for _, a := range items {
						if _, err := fmt.Fprintln(deps.out, a.ID); err != nil {
							return err
						}
					}
					return nil
				}

				tw := tabwriter.NewWriter(deps.out, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "ID\tTAG\tTYPE\tSEX\tVERSION\tUPDATED")
				for _, a := range items {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
						a.ID, a.Tag, a.Type, a.Sex, a.Version, formatUpdated(a.UpdatedAt))
				}
				return tw.Flush()
			})
		},
	}
}

func newAnimalShowCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:     "show <id>",
		Short:   "Show one animal",
		Example: "  agrotech animal show 6f1c2b1e-7d8a-4a55-9a8e-2f1f0b7c9d10",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("animal show requires exactly one id")
			}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *session) error {
				a, ok, err := s.repo.GetAnimalByID(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return notFoundErrorf("animal %q not found", args[0])
				}
				return printAnimal(deps, a)
			})
		},
	}
}

type animalFlags struct {
	id      string
	version int64
	tag     string
	kind    string
	sex     string

	text  map[string]*string
	dates map[string]*string

	weightKg   float64
	priceValue float64
}

// Optional text and date flags, in record order.
var (
	animalTextFlags = []string{"breed", "origin", "lot", "pasture", "supplier", "buyer", "sire-tag", "dam-tag", "cause-mortis", "notes"}
	animalDateFlags = []string{"purchase-date", "birth-date", "weaning-date", "sale-date", "pasture-start-date", "confinement-start-date"}
)

func newAnimalUpsertCommand(deps commandDeps) *cobra.Command {
	f := animalFlags{text: map[string]*string{}, dates: map[string]*string{}}

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create an animal, or replace one at the version last read",
		Example: "  agrotech animal upsert --tag A-001 --type CALF --sex FEMALE\n" +
			"  agrotech animal upsert --id <id> --version 1 --tag A-001 --type CALF --sex FEMALE --weight-kg 120",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("animal upsert does not accept positional arguments")
			}
			if strings.TrimSpace(f.tag) == "" {
				return usageErrorf("animal upsert requires --tag")
			}
			if strings.TrimSpace(f.kind) == "" {
				return usageErrorf("animal upsert requires --type")
			}
			if strings.TrimSpace(f.sex) == "" {
				return usageErrorf("animal upsert requires --sex")
			}

			in, err := f.animal(cmd)
			if err != nil {
				return mapCommandError(err)
			}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *session) error {
				saved, err := s.repo.UpsertAnimal(ctx, in)
				if err != nil {
					return err
				}
				return printAnimal(deps, saved)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.id, "id", "", "Animal id; omit to create a new record")
	flags.Int64Var(&f.version, "version", 0, "Version last read; 0 for a new record")
	flags.StringVar(&f.tag, "tag", "", "Ear tag")
	flags.StringVar(&f.kind, "type", "", "CALF, YEARLING, BREEDING_FEMALE or FEEDLOT")
	flags.StringVar(&f.sex, "sex", "", "MALE or FEMALE")
	for _, name := range animalTextFlags {
		f.text[name] = flags.String(name, "", strings.ReplaceAll(name, "-", " "))
	}
	for _, name := range animalDateFlags {
		f.dates[name] = flags.String(name, "", strings.ReplaceAll(name, "-", " ")+" (YYYY-MM-DD)")
	}
	flags.Float64Var(&f.weightKg, "weight-kg", 0, "Weight in kilograms")
	flags.Float64Var(&f.priceValue, "price-value", 0, "Price")
	return cmd
}

func (f animalFlags) animal(cmd *cobra.Command) (storage.Animal, error) {
	animalType, err := storage.ParseAnimalType(f.kind)
	if err != nil {
		return storage.Animal{}, err
	}
	sex, err := storage.ParseSex(f.sex)
	if err != nil {
		return storage.Animal{}, err
	}

	a := storage.Animal{
		ID:          strings.TrimSpace(f.id),
		Version:     f.version,
		Tag:         f.tag,
		Type:        animalType,
		Sex:         sex,
		Breed:       *f.text["breed"],
		Origin:      *f.text["origin"],
		Lot:         *f.text["lot"],
		Pasture:     *f.text["pasture"],
		Supplier:    *f.text["supplier"],
		Buyer:       *f.text["buyer"],
		SireTag:     *f.text["sire-tag"],
		DamTag:      *f.text["dam-tag"],
		CauseMortis: *f.text["cause-mortis"],
		Notes:       *f.text["notes"],
	}

	targets := map[string]**time.Time{
		"purchase-date":          &a.PurchaseDate,
		"birth-date":             &a.BirthDate,
		"weaning-date":           &a.WeaningDate,
		"sale-date":              &a.SaleDate,
		"pasture-start-date":     &a.PastureStartDate,
		"confinement-start-date": &a.ConfinementStartDate,
	}
	for _, name := range animalDateFlags {
		t, err := storage.ParseDate(*f.dates[name])
		if err != nil {
			return storage.Animal{}, fmt.Errorf("--%s: %w", name, err)
		}
		*targets[name] = t
	}

	if cmd.Flags().Changed("weight-kg") {
		v := f.weightKg
		a.WeightKg = &v
	}
	if cmd.Flags().Changed("price-value") {
		v := f.priceValue
		a.PriceValue = &v
	}
	return a, nil
}

func printAnimal(deps commandDeps, a storage.Animal) error {
	if deps.globals.JSON {
		return printJSON(deps.out, storage.ToRecord(a))
	}
	if deps.globals.Quiet {
		_, err := fmt.Fprintln(deps.out, a.ID)
		return err
	}

	rec := storage.ToRecord(a)
	fields := [][2]string{
		{"id", rec.ID},
		{"tag", rec.Tag},
		{"type", rec.Type},
		{"sex", rec.Sex},
		{"breed", rec.Breed},
		{"origin", rec.Origin},
		{"lot", rec.Lot},
		{"pasture", rec.Pasture},
		{"supplier", rec.Supplier},
		{"buyer", rec.Buyer},
		{"sireTag", rec.SireTag},
		{"damTag", rec.DamTag},
		{"causeMortis", rec.CauseMortis},
		{"notes", rec.Notes},
		{"purchaseDate", rec.PurchaseDate},
		{"birthDate", rec.BirthDate},
		{"weaningDate", rec.WeaningDate},
		{"saleDate", rec.SaleDate},
		{"pastureStartDate", rec.PastureStartDate},
		{"confinementStartDate", rec.ConfinementStartDate},
		{"weightKg", formatFloat(rec.WeightKg)},
		{"priceValue", formatFloat(rec.PriceValue)},
		{"updatedAt", rec.UpdatedAt},
		{"version", strconv.FormatInt(rec.Version, 10)},
	}

	tw := tabwriter.NewWriter(deps.out, 0, 4, 2, ' ', 0)
	for _, field := range fields {
		if field[1] == "" {
			continue
		}
		_, _ = fmt.Fprintf(tw, "%s:\t%s\n", field[0], field[1])
	}
	return tw.Flush()
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatUpdated(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return storage.FormatTimestamp(t)
}
