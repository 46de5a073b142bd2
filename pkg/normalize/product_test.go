package normalize

import (
	"encoding/json"
	"testing"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "plain text", input: "  hello  ", expected: "hello"},
		{name: "markup", input: "<p>Great <b>product</b></p>", expected: "Great product"},
		{name: "escaped markup", input: "&lt;p&gt;Great &lt;b&gt;product&lt;/b&gt;&lt;/p&gt;", expected: "Great product"},
		{name: "entities", input: "<p>Tom &amp; Jerry</p>", expected: "Tom & Jerry"},
		{name: "drops scripts", input: "<div>a<script>alert(1)</script><style>p{}</style>b</div>", expected: "a b"},
		{name: "multiline", input: "<ul>\n<li>one</li>\n<li>two</li>\n</ul>", expected: "one two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StripHTML(tt.input)
			if err != nil {
				t.Fatalf("StripHTML() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("StripHTML(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseProduct(t *testing.T) {
	body := []byte(`{
		"id": 275717,
		"name": "Sach hay",
		"url_key": "sach-hay",
		"price": 150000,
		"description": "&lt;p&gt;Mo ta &lt;i&gt;ngan&lt;/i&gt;&lt;/p&gt;",
		"images": [{"base_url": "https://img/1.jpg"}, {"base_url": "https://img/2.jpg"}],
		"ignored": {"nested": true}
	}`)

	p, err := ParseProduct(body)
	if err != nil {
		t.Fatalf("ParseProduct() error = %v", err)
	}

	if p.ID != 275717 || p.Name != "Sach hay" || p.URLKey != "sach-hay" {
		t.Errorf("unexpected identity fields: %+v", p)
	}
	if p.Price == nil || *p.Price != 150000 {
		t.Errorf("Price = %v, want 150000", p.Price)
	}
	if p.Description != "Mo ta ngan" {
		t.Errorf("Description = %q, want %q", p.Description, "Mo ta ngan")
	}
	if p.Image == nil || *p.Image != "https://img/1.jpg" {
		t.Errorf("Image = %v, want first base_url", p.Image)
	}
}

func TestParseProduct_MissingOptionalFields(t *testing.T) {
	p, err := ParseProduct([]byte(`{"id": 1, "images": []}`))
	if err != nil {
		t.Fatalf("ParseProduct() error = %v", err)
	}

	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	expected := `{"id":1,"name":"","url_key":"","price":null,"description":"","images":null}`
	if string(out) != expected {
		t.Errorf("json = %s, want %s", out, expected)
	}
}

func TestParseProduct_Invalid(t *testing.T) {
	tests := []string{``, `<html>`, `[1,2]`, `{"id": "abc"}`}

	for _, body := range tests {
		if _, err := ParseProduct([]byte(body)); err == nil {
			t.Errorf("ParseProduct(%q) expected error", body)
		}
	}
}

func TestProductNormalizer(t *testing.T) {
	rec, err := ProductNormalizer{}.Normalize([]byte(`{"id": 9, "name": "x"}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	p, ok := rec.(Product)
	if !ok || p.ID != 9 {
		t.Errorf("Normalize() = %#v", rec)
	}
}
