package h3mapper

import (
	"fmt"
	"strings"

	h3 "github.com/uber/h3-go/v4"
)

// Resolution parses cell and returns its resolution.
func (m *Mapper) Resolution(cell string) (int, error) {
	c, err := parseCell(cell)
	if err != nil {
		return 0, err
	}
	return c.Resolution(), nil
}

func parseCell(cell string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(cell)))); err != nil {
		return 0, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid h3 cell %q", cell)
	}
	return c, nil
}

// ToParent maps cell to its ancestor at parentRes.
func (m *Mapper) ToParent(cell string, parentRes int) (string, error) {
	if err := validateRes(parentRes); err != nil {
		return "", err
	}
	c, err := parseCell(cell)
	if err != nil {
		return "", err
	}
	curRes := c.Resolution()
	if parentRes > curRes {
		return "", fmt.Errorf("parentRes %d must be <= cell resolution %d", parentRes, curRes)
	}
	if parentRes == curRes {
		return c.String(), nil
	}

	p, err := c.Parent(parentRes)
	if err != nil {
		return "", fmt.Errorf("h3 parent: %w", err)
	}
	return p.String(), nil
}

// Ancestors returns cell followed by each parent down to minRes. Items indexed
// with a coarsened cover are found through these.
func (m *Mapper) Ancestors(cell string, minRes int) ([]string, error) {
	if err := validateRes(minRes); err != nil {
		return nil, err
	}
	c, err := parseCell(cell)
	if err != nil {
		return nil, err
	}
	res := c.Resolution()
	if minRes > res {
		minRes = res
	}
	out := make([]string, 0, res-minRes+1)
	out = append(out, c.String())
	for r := res - 1; r >= minRes; r-- {
		p, err := c.Parent(r)
		if err != nil {
			return nil, fmt.Errorf("h3 parent: %w", err)
		}
		out = append(out, p.String())
	}
	return out, nil
}
