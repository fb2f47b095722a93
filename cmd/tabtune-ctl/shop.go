package main

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// validAmount accepts plain numbers with at most two decimals.
var validAmount = regexp.MustCompile(`^\d+(\.\d{0,2})?$`)

func parseAmount(name, s string) (float64, error) {
	if !validAmount.MatchString(s) {
		return 0, fmt.Errorf("%s: %q is not a number with at most two decimals", name, s)
	}
	return strconv.ParseFloat(s, 64)
}

var errZeroDivisor = errors.New("divisor must be greater than zero")

// discountPercent returns (old-new)/old*100.
func discountPercent(oldPrice, newPrice float64) (float64, error) {
	if oldPrice <= 0 {
		return 0, fmt.Errorf("old price: %w", errZeroDivisor)
	}
	return (oldPrice - newPrice) / oldPrice * 100, nil
}

// pricePer100 returns the price per 100 units of weight or volume.
func pricePer100(price, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("amount: %w", errZeroDivisor)
	}
	return price / amount * 100, nil
}

func runDiscount(args []string, w io.Writer) error {
	if len(args) != 2 {
		return errors.New("usage: tabtune-ctl discount <old price> <new price>")
	}
	oldPrice, err := parseAmount("old price", args[0])
	if err != nil {
		return err
	}
	newPrice, err := parseAmount("new price", args[1])
	if err != nil {
		return err
	}
	d, err := discountPercent(oldPrice, newPrice)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Discount: %.2f%%\n", d)
	return nil
}

func runUnitPrice(args []string, w io.Writer) error {
	if len(args) != 2 {
		return errors.New("usage: tabtune-ctl unit-price <price> <grams or ml>")
	}
	price, err := parseAmount("price", args[0])
	if err != nil {
		return err
	}
	amount, err := parseAmount("amount", args[1])
	if err != nil {
		return err
	}
	p, err := pricePer100(price, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "$%.2f per 100g/ml\n", p)
	return nil
}
