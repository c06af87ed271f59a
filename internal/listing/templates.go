package listing

// Built-in description template names.
const (
	TemplateMotoPart   = "moto_part"
	TemplateMotoEngine = "moto_engine"
	TemplateGeneric    = "generic"
)

var builtinTemplates = map[string]string{
	TemplateMotoEngine: `Motore {{.brand}} {{.model}} {{.compatible_years}}
• Tipo: {{.engine_type}}
• Cilindrata: {{.displacement}}
• Alesaggio/Corsa: {{.bore_stroke}}
• Rapporto di compressione: {{.compression_ratio}}
• Potenza max: {{.max_power}}
• Coppia max: {{.max_torque}}
• Raffreddamento: {{.cooling}}
• Alimentazione: {{.fuel_system}}
• Avviamento: {{.starter}}
• Cambio: {{.gearbox}}
• Trasmissione finale: {{.final_drive}}
• Olio consigliato: {{.recommended_oil}}
• Capacità olio: {{.oil_capacity}}
• Colore: {{.color}}
• Anno: {{.year}}
Compatibilità: {{.compatible_years}}
MPN: {{.mpn}}
{{if .description}}
{{.description}}
{{end}}`,

	TemplateMotoPart: `Ricambio {{.part_type}} per {{.brand}} {{.model}} ({{.year}})
• Colore: {{.color}}
• Compatibilità: {{.compatible_years}}
• MPN: {{.mpn}}
{{if .description}}
{{.description}}
{{end}}
Articolo usato originale, testato e funzionante salvo diversa indicazione. Segni d'uso come da foto.
{{if .tags}}
Tag: {{.tags}}
{{end}}`,

	TemplateGeneric: `{{.title_hint}}
• Brand: {{.brand}}
• Model: {{.model}}
• Condition: {{.condition}}
• Color: {{.color}}
• Material: {{.material}}
• SKU: {{.sku}}
{{if .description}}
{{.description}}
{{end}}{{if .tags}}
Tags: {{.tags}}
{{end}}`,
}
