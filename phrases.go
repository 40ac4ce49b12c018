/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"math/big"
	"strings"
)

var prizeAdjectives = []string{
	"golden", "dazzling", "legendary", "cosmic", "radiant", "mighty",
	"triumphant", "glorious", "electric", "supreme", "blazing", "epic",
	"unstoppable", "majestic", "thundering", "shimmering",
}

var prizeNouns = []string{
	"champion", "comet", "trophy", "phoenix", "jackpot", "crown",
	"rocket", "legend", "meteor", "wildcard", "dynamo", "maverick",
	"ace", "streak", "banner", "fanfare",
}

func randomElement(list []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
	if err != nil {
		return list[0]
	}
	return list[n.Int64()]
}

// prizePhrase generates the secret phrase a verified winner reads back
// to claim their prize at the venue.
func prizePhrase() string {
	return strings.Join([]string{
		randomElement(prizeAdjectives),
		randomElement(prizeNouns),
		randomElement(prizeNouns),
	}, "-")
}
