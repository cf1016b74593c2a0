// Package bionic rewrites ePub books into a "bionic reading" style: the
// leading half of every word is bolded and the rest is rendered translucent,
// which guides the eye through the text faster.
//
// # Transforming a book
//
// A [Transformer] runs the whole pipeline on one file. The result is
// written next to the input, named with a mode prefix ("BionicC_" for
// Polychrome, "BionicB_" for Monochrome):
//
//	cfg := bionic.DefaultConfig()
//	cfg.Mode = bionic.Monochrome
//	t, err := bionic.NewTransformer(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := t.Run(ctx, "book.epub")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Output) // BionicB_book.epub
//
// # Building blocks
//
// [Segment] splits text into word and separator [Token] values. A
// [Renderer] turns tokens into markup, taking colours from a [Palette] in
// Polychrome mode. [RewriteDocument] applies a renderer to the
// text-bearing elements of a parsed document and [RewriteFile] does the
// same for a file on disk. [FindDocuments] enumerates the markup files of
// an unpacked book; [Unpack] and [Pack] move between the container and a
// directory.
//
// # Limitations
//
// A rewritten element loses any markup nested in it: links inside a
// paragraph, and the href of a rewritten anchor's content, are flattened
// to plain emphasised text.
//
// Documents are parsed and serialized with golang.org/x/net/html, so the
// markup outside rewritten elements is preserved as an HTML parse/render
// round trip, not byte for byte. Character references such as &#160; come
// back as the raw character and void elements are written as <br/>.
// Processing instructions other than a leading XML declaration become
// comments (<!--?xml-stylesheet ...?-->).
//
// # Error Handling
//
// Stage failures are returned as go-errors values carrying a text code
// (see [TextCode]) and wrap the package sentinels:
//   - [ErrDRMProtected] – the book is DRM encrypted and cannot be rewritten
//   - [ErrInvalidEPub] – structural validation failed
//   - [ErrNoInput] – no input path was given
//   - [ErrUnsafePath] – an archive entry would escape the extraction directory
package bionic
