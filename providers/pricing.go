package providers

import (
	"math"
	"strings"
)

// price in USD pro 1M Tokens
type price struct {
	input  float64
	output float64
}

// Längster Präfix gewinnt.
var modelPrices = map[string]price{
	"gpt-4o-mini":       {input: 0.15, output: 0.60},
	"gpt-4o":            {input: 2.50, output: 10.00},
	"gpt-4.1-mini":      {input: 0.40, output: 1.60},
	"gpt-4.1":           {input: 2.00, output: 8.00},
	"claude-3-5-haiku":  {input: 0.80, output: 4.00},
	"claude-3-5-sonnet": {input: 3.00, output: 15.00},
	"claude-3-7-sonnet": {input: 3.00, output: 15.00},
	"claude-sonnet-4":   {input: 3.00, output: 15.00},
	"claude-opus-4":     {input: 15.00, output: 75.00},
}

// Bildpreise pro Bild.
var imagePrices = map[string]float64{
	"dall-e-3":    0.04,
	"dall-e-2":    0.02,
	"gpt-image-1": 0.04,
}

// EstimateCost schätzt die Kosten eines Aufrufs. Unbekannte Modelle kosten 0.
func EstimateCost(model string, promptTokens, completionTokens int) float64 {
	p, ok := lookupPrice(model)
	if !ok {
		return 0
	}
	cost := (float64(promptTokens)*p.input + float64(completionTokens)*p.output) / 1_000_000
	return math.Round(cost*1e6) / 1e6
}

// EstimateImageCost liefert den Preis eines generierten Bildes.
func EstimateImageCost(model string) float64 {
	return imagePrices[strings.ToLower(model)]
}

func lookupPrice(model string) (price, bool) {
	model = strings.ToLower(model)
	best := ""
	for prefix := range modelPrices {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return price{}, false
	}
	return modelPrices[best], true
}
