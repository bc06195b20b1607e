package docxio

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/routebook/internal/docmodel"
)

// Field parsing state inside a footer paragraph.
const (
	fieldNone = iota
	fieldInstr
	fieldResult
)

// parseFooter reads a footer part. Footers hold page numbers and short text,
// so the reader keeps paragraphs, text, tabs, simple fields and the basic run
// formatting; pictures and tables in footers are dropped.
func parseFooter(data []byte) (*docmodel.Footer, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	footer := &docmodel.Footer{}

	var (
		para    *docmodel.Paragraph
		run     *docmodel.Run
		inPPr   bool
		inRPr   bool
		inText  bool
		inInstr bool
		state   = fieldNone
		instr   strings.Builder
	)
	emitField := func() {
		code := strings.TrimSpace(instr.String())
		instr.Reset()
		if para == nil || code == "" {
			return
		}
		f := &docmodel.Run{Field: code}
		if run != nil {
			f.Props = run.Props
		}
		para.Runs = append(para.Runs, f)
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse footer: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para = &docmodel.Paragraph{}
			case "pPr":
				inPPr = true
			case "pStyle":
				if inPPr && para != nil {
					para.Props.StyleID = attr(t, "val")
				}
			case "jc":
				if inPPr && para != nil {
					para.Props.Align = attr(t, "val")
				}
			case "r":
				run = &docmodel.Run{}
			case "rPr":
				inRPr = !inPPr
			case "rFonts":
				if inRPr && run != nil {
					run.Props.Fonts = docmodel.Fonts{
						ASCII:    attr(t, "ascii"),
						HAnsi:    attr(t, "hAnsi"),
						EastAsia: attr(t, "eastAsia"),
						CS:       attr(t, "cs"),
					}
				}
			case "b":
				if inRPr && run != nil {
					run.Props.Bold = onOff(t)
				}
			case "i":
				if inRPr && run != nil {
					run.Props.Italic = onOff(t)
				}
			case "color":
				if inRPr && run != nil {
					run.Props.Color = attr(t, "val")
				}
			case "sz":
				if n := atoiPtr(attr(t, "val")); inRPr && run != nil && n != nil {
					run.Props.Size = *n
				}
			case "t":
				inText = true
			case "instrText":
				inInstr = true
			case "tab":
				if run != nil && !inPPr && state != fieldResult {
					run.Text += "\t"
				}
			case "fldChar":
				switch attr(t, "fldCharType") {
				case "begin":
					state = fieldInstr
					instr.Reset()
				case "separate":
					emitField()
					state = fieldResult
				case "end":
					if state == fieldInstr {
						emitField()
					}
					state = fieldNone
				}
			case "fldSimple":
				instr.Reset()
				instr.WriteString(attr(t, "instr"))
				emitField()
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("parse footer: %w", err)
				}
			}
		case xml.CharData:
			switch {
			case inInstr:
				instr.Write(t)
			case inText && run != nil && state == fieldNone:
				run.Text += string(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "instrText":
				inInstr = false
			case "pPr":
				inPPr = false
			case "rPr":
				inRPr = false
			case "r":
				if run != nil && run.Text != "" && para != nil {
					para.Runs = append(para.Runs, run)
				}
				run = nil
			case "p":
				if para != nil {
					footer.Paragraphs = append(footer.Paragraphs, para)
				}
				para = nil
			}
		}
	}
	return footer, nil
}
