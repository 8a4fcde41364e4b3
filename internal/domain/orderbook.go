package domain

import (
	"sort"
	"strconv"
)

// OrderBook representa el libro de órdenes de un token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// SortedAsks devuelve los asks ordenados de menor a mayor precio.
// Si ya vienen ordenados devuelve el mismo slice; si no, una copia ordenada
// (el slice original nunca se modifica).
func SortedAsks(asks []BookEntry) []BookEntry {
	if sort.SliceIsSorted(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price }) {
		return asks
	}
	sorted := make([]BookEntry, len(asks))
	copy(sorted, asks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })
	return sorted
}

// ParsePrice convierte un string de precio a float64.
// Usado en el mapping de la API.
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
