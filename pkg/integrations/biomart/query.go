package biomart

import (
	"encoding/xml"
	"strings"
)

// Attribute names requested from BioMart, in response column order.
const (
	AttrEnsemblID = "ensembl_gene_id"
	AttrSymbol    = "external_gene_name"
	AttrEntrezID  = "entrezgene_id"
)

var attributes = []string{AttrEnsemblID, AttrSymbol, AttrEntrezID}

type xmlQuery struct {
	XMLName           xml.Name   `xml:"Query"`
	VirtualSchemaName string     `xml:"virtualSchemaName,attr"`
	Formatter         string     `xml:"formatter,attr"`
	Header            string     `xml:"header,attr"`
	UniqueRows        string     `xml:"uniqueRows,attr"`
	DatasetConfig     string     `xml:"datasetConfigVersion,attr"`
	Dataset           xmlDataset `xml:"Dataset"`
}

type xmlDataset struct {
	Name       string         `xml:"name,attr"`
	Interface  string         `xml:"interface,attr"`
	Filters    []xmlFilter    `xml:"Filter"`
	Attributes []xmlAttribute `xml:"Attribute"`
}

type xmlFilter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlAttribute struct {
	Name string `xml:"name,attr"`
}

// BuildQuery renders the XML query that filters dataset by Ensembl gene IDs.
func BuildQuery(dataset string, ids []string) (string, error) {
	q := xmlQuery{
		VirtualSchemaName: "default",
		Formatter:         "TSV",
		Header:            "0",
		UniqueRows:        "1",
		DatasetConfig:     "0.6",
		Dataset: xmlDataset{
			Name:      dataset,
			Interface: "default",
			Filters:   []xmlFilter{{Name: AttrEnsemblID, Value: strings.Join(ids, ",")}},
		},
	}
	for _, a := range attributes {
		q.Dataset.Attributes = append(q.Dataset.Attributes, xmlAttribute{Name: a})
	}

	out, err := xml.Marshal(q)
	if err != nil {
		return "", err
	}
	return xml.Header + "<!DOCTYPE Query>" + string(out), nil
}
