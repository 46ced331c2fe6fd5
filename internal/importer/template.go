package importer

import (
	"bytes"
	"strings"
)

// TemplateColumns is the header row of the downloadable import template.
var TemplateColumns = []string{
	"name", "category", "price", "mrp", "stock", "stockStatus", "description",
	"brand", "ageRange", "tags", "images", "frameSize", "wheelSize", "gears",
	"weight", "maxLoad", "brakeType", "suspension", "material", "isFeatured", "isNew",
}

// SpecColumns are the template columns stored in a product's specs.
var SpecColumns = []string{
	"frameSize", "wheelSize", "gears", "weight", "maxLoad", "brakeType", "suspension", "material",
}

var templateExample = []string{
	"Trail Runner 24", "bicycles", "18999", "21999", "12", "in_stock",
	"Lightweight alloy frame for young riders", "Roadster", "8-12 years",
	"mtb,kids", "trail-runner.jpg,trail-runner-side.jpg", "13 inch", "24 inch", "7",
	"12.5 kg", "80 kg", "disc", "front", "alloy", "true", "false",
}

// TemplateFilename is the suggested download name.
const TemplateFilename = "product-import-template.csv"

// Template returns the CSV import template: UTF-8 BOM, header row and one
// example row.
func Template() []byte {
	var buf bytes.Buffer
	buf.Write(utf8BOM)
	writeTemplateLine(&buf, TemplateColumns)
	writeTemplateLine(&buf, templateExample)
	return buf.Bytes()
}

func writeTemplateLine(buf *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if strings.Contains(f, ",") {
			buf.WriteByte('"')
			buf.WriteString(f)
			buf.WriteByte('"')
			continue
		}
		buf.WriteString(f)
	}
	buf.WriteString("\r\n")
}
