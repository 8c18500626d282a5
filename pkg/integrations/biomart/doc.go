// Package biomart queries the Ensembl BioMart service for gene identifier
// cross-references.
//
// BioMart accepts an XML query document as the "query" parameter of a GET
// request to its martservice endpoint and answers with headerless TSV. The
// client asks for three attributes per gene: ensembl_gene_id,
// external_gene_name and entrezgene_id. IDs are sent in batches of
// [DefaultBatchSize]; each batch response is cached separately.
//
//	c := biomart.NewClient(fileCache, biomart.Options{})
//	recs, err := c.Lookup(ctx, []string{"ENSG00000141510"}, false)
package biomart
