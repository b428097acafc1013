package main

import (
	"bytes"
	"fmt"
	"os"

	"xdao.co/nfa/descriptor"
	"xdao.co/nfa/digest"
)

// cmdDescribe hashes the download (and ABI) URIs and prints a descriptor
// committing to the result.
func cmdDescribe(e env, args []string) int {
	var (
		c              common
		versionID      string
		downloadURIs   []string
		abiURIs        []string
		abiPerURI      bool
		routerRequired bool
		payment        string
		format         string
		outPath        string
	)
	fs := newFlagSet(e, "describe", &c, false)
	fs.StringVar(&versionID, "version-id", "", "semantic version of the release")
	fs.StringArrayVar(&downloadURIs, "download-uri", nil, "artifact URI, in digest order (repeatable)")
	fs.StringArrayVar(&abiURIs, "abi-uri", nil, "ABI URI (repeatable)")
	fs.BoolVar(&abiPerURI, "abi-per-uri", false, "commit to one digest per ABI URI instead of one aggregate")
	fs.BoolVar(&routerRequired, "router-required", false, "the application requires a router")
	fs.StringVar(&payment, "payment", string(descriptor.PaymentFree), "payment model: free or paid")
	fs.StringVar(&format, "format", "yaml", "output format: yaml or json")
	fs.StringVarP(&outPath, "out", "o", "", "write the descriptor to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if versionID == "" || len(downloadURIs) == 0 || fs.NArg() != 0 {
		fmt.Fprintln(e.errOut, "usage: nfa describe --version-id <semver> --download-uri <uri> [--download-uri ...] [--abi-uri <uri> ...]")
		return exitUsage
	}
	pm, err := descriptor.ParsePaymentModel(payment)
	if err != nil {
		return exitCode(e, "describe", err)
	}

	cfg, err := c.load(fs)
	if err != nil {
		return exitCode(e, "describe", err)
	}
	typ, err := c.typ()
	if err != nil {
		return exitCode(e, "describe", err)
	}
	log := logger(e, cfg)
	v, err := cfg.Verifier(log, nil)
	if err != nil {
		return exitCode(e, "describe", err)
	}
	sources := cfg.Sources()

	hash := func(refs []string) (digest.Digest, error) {
		srcs, err := sources.Sources(typ, refs)
		if err != nil {
			return digest.Digest{}, err
		}
		res, err := v.Run(e.ctx, srcs)
		if err != nil {
			return digest.Digest{}, err
		}
		return res.Digest, nil
	}

	code, err := hash(downloadURIs)
	if err != nil {
		return exitCode(e, "describe", err)
	}
	var abi []digest.Digest
	switch {
	case len(abiURIs) == 0:
	case abiPerURI:
		for _, u := range abiURIs {
			d, err := hash([]string{u})
			if err != nil {
				return exitCode(e, "describe", err)
			}
			abi = append(abi, d)
		}
	default:
		d, err := hash(abiURIs)
		if err != nil {
			return exitCode(e, "describe", err)
		}
		abi = append(abi, d)
	}

	app, err := descriptor.Build(descriptor.BuildInput{
		VersionID:      versionID,
		DownloadURIs:   downloadURIs,
		ABIURIs:        abiURIs,
		RouterRequired: routerRequired,
		PaymentModel:   pm,
	}, code, abi...)
	if err != nil {
		return exitCode(e, "describe", err)
	}

	var buf bytes.Buffer
	if err := writeDescriptor(&buf, app, format); err != nil {
		return exitCode(e, "describe", err)
	}
	if outPath == "" {
		_, _ = e.out.Write(buf.Bytes())
	} else if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return exitCode(e, "describe", err)
	}
	log.Info().Str("version", versionID).Str("codeHash", code.Hex()).Msg("descriptor built")
	return exitOK
}
