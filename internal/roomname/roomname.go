// Package roomname generates memorable room names such as
// "sleepy-otter-harbor-lantern".
package roomname

import (
	"crypto/rand"
	"math/big"
	"strings"
)

var wordLists = [][]string{adjectives, animals, places, things}

// Generate returns a random hyphenated name with one word from each list.
func Generate() (string, error) {
	words := make([]string, 0, len(wordLists))
	for _, list := range wordLists {
		i, err := randomIndex(len(list))
		if err != nil {
			return "", err
		}
		words = append(words, list[i])
	}
	return strings.Join(words, "-"), nil
}

// GenerateUnique calls Generate until taken reports a free name.
func GenerateUnique(taken func(string) bool) (string, error) {
	for {
		name, err := Generate()
		if err != nil {
			return "", err
		}
		if taken == nil || !taken(name) {
			return name, nil
		}
	}
}

func randomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
