/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

// CatalogEntry is a SAT code with its description.
type CatalogEntry struct {
	Code        string
	Description string
}

// TaxRegimes are the fiscal regimes offered in the billing flow. Kept at ten or
// fewer so the whole catalog fits one list message.
var TaxRegimes = []CatalogEntry{
	{Code: "601", Description: "General de Ley Personas Morales"},
	{Code: "603", Description: "Personas Morales con Fines no Lucrativos"},
	{Code: "605", Description: "Sueldos y Salarios"},
	{Code: "606", Description: "Arrendamiento"},
	{Code: "612", Description: "Actividades Empresariales y Profesionales"},
	{Code: "616", Description: "Sin obligaciones fiscales"},
	{Code: "621", Description: "Incorporación Fiscal"},
	{Code: "625", Description: "Plataformas Tecnológicas"},
	{Code: "626", Description: "Régimen Simplificado de Confianza"},
}

// CfdiUsages are the CFDI usage codes offered when requesting an invoice.
var CfdiUsages = []CatalogEntry{
	{Code: "G01", Description: "Adquisición de mercancías"},
	{Code: "G02", Description: "Devoluciones, descuentos o bonificaciones"},
	{Code: "G03", Description: "Gastos en general"},
	{Code: "I01", Description: "Construcciones"},
	{Code: "D01", Description: "Honorarios médicos y dentales"},
	{Code: "S01", Description: "Sin efectos fiscales"},
	{Code: "CP01", Description: "Pagos"},
}

func FindTaxRegime(code string) (CatalogEntry, bool) {
	return findEntry(TaxRegimes, code)
}

func FindCfdiUsage(code string) (CatalogEntry, bool) {
	return findEntry(CfdiUsages, code)
}

func findEntry(entries []CatalogEntry, code string) (CatalogEntry, bool) {
	for _, e := range entries {
		if e.Code == code {
			return e, true
		}
	}
	return CatalogEntry{}, false
}
