package main

import (
	"os"

	"github.com/woozymasta/reproj/internal/bakery"
	"github.com/woozymasta/reproj/internal/logger"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Batch  int `short:"b" long:"batch"  description:"Cookies baked per round" default:"8"`
	Order  int `short:"n" long:"order"  description:"Cookies ordered per round" default:"3"`
	Rounds int `short:"r" long:"rounds" description:"Shop rounds to simulate" default:"4"`
	Wallet int `short:"w" long:"wallet" description:"Customer wallet in cents" default:"2000"`
	Price  int `short:"p" long:"price"  description:"Cookie price in cents" default:"250"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	baker := bakery.NewBaker("bea", "Bea", opts.Price)
	carl := bakery.NewCustomer("carl", "Carl", opts.Wallet)
	dana := bakery.NewCustomer("dana", "Dana", opts.Wallet/2)

	for _, g := range bakery.GreetAll(baker, carl, dana) {
		log.Info().Msg(g)
	}

	if err := carl.Befriend(&baker.Human); err != nil {
		log.Warn().Err(err).Msg("Friendship refused")
	}
	log.Info().Strs("friends", baker.Friends()).Str("baker", baker.Name).Msg("Friends")

	for round := 1; round <= opts.Rounds; round++ {
		if err := baker.Bake(opts.Batch); err != nil {
			log.Warn().Err(err).Int("round", round).Msg("Baking skipped, sleeping instead")
			baker.Sleep(8)
		}

		for _, c := range []*bakery.Customer{carl, dana} {
			paid, err := c.Buy(baker, opts.Order)
			if err != nil {
				log.Warn().Err(err).Int("round", round).Str("customer", c.Name).Msg("Purchase failed")
				continue
			}
			log.Info().
				Int("round", round).
				Str("customer", c.Name).
				Int("cookies", opts.Order).
				Str("paid", bakery.FormatCents(paid)).
				Str("wallet", bakery.FormatCents(c.Wallet)).
				Msg("Purchase")

			if err := c.Eat(opts.Order + 1); err != nil {
				log.Warn().Err(err).Str("customer", c.Name).Msg("Still hungry")
			}
		}

		log.Info().
			Int("round", round).
			Int("stock", baker.Stock).
			Int("energy", baker.Energy).
			Str("till", bakery.FormatCents(baker.Till)).
			Msg("Round finished")
	}

	carl.Unfriend(&baker.Human)
	log.Info().Strs("friends", carl.Friends()).Str("customer", carl.Name).Msg("Friends")
}
