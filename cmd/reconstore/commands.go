package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli"

	"reconstore/internal/codec"
	"reconstore/internal/config"
	"reconstore/internal/domain"
	"reconstore/internal/ingest"
	"reconstore/internal/logger"
	"reconstore/internal/repository/sqlite"
)

func (r *runner) commands() []cli.Command {
	return []cli.Command{
		{
			Name:   "init",
			Usage:  "create the schema in a new store file",
			Action: r.initStore,
		},
		{
			Name:  "config",
			Usage: "inspect or write the config file",
			Subcommands: []cli.Command{
				{
					Name:   "show",
					Usage:  "print the effective config",
					Action: r.showConfig,
				},
				{
					Name:  "write",
					Usage: "save the effective config",
					Flags: []cli.Flag{
						cli.StringFlag{Name: "path", Usage: "destination (default: XDG config location)"},
					},
					Action: r.writeConfig,
				},
			},
		},
		{
			Name:      "hosts",
			Usage:     "list computers by id, address or hostname substring",
			ArgsUsage: "[filter | dc]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "domain", Usage: "with filter \"dc\", restrict to this domain"},
			},
			Action: r.withStore(r.listHosts),
		},
		{
			Name:  "add-host",
			Usage: "record a computer observation",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "ip", Usage: "address (required)"},
				cli.StringFlag{Name: "hostname"},
				cli.StringFlag{Name: "domain"},
				cli.StringFlag{Name: "os"},
				cli.StringFlag{Name: "dc", Usage: "true or false; omitted leaves the flag untouched"},
				cli.BoolFlag{Name: "smbv1"},
				cli.BoolFlag{Name: "signing"},
				cli.BoolFlag{Name: "spooler"},
				cli.BoolFlag{Name: "zerologon"},
				cli.BoolFlag{Name: "petitpotam"},
			},
			Action: r.withStore(r.addHost),
		},
		{
			Name:      "creds",
			Usage:     "list credentials by id, username substring or type",
			ArgsUsage: "[filter]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "type", Usage: "only this credtype"},
			},
			Action: r.withStore(r.listCreds),
		},
		{
			Name:  "add-cred",
			Usage: "record a credential",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "type", Value: domain.CredTypePlaintext},
				cli.StringFlag{Name: "domain"},
				cli.StringFlag{Name: "user", Usage: "username (required)"},
				cli.StringFlag{Name: "password"},
				cli.Int64Flag{Name: "group-id"},
				cli.Int64Flag{Name: "pillaged-from", Usage: "computer id the secret came from"},
			},
			Action: r.withStore(r.addCred),
		},
		{
			Name:  "add-user",
			Usage: "register an account without a secret",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "domain"},
				cli.StringFlag{Name: "user", Usage: "username (required)"},
				cli.Int64Flag{Name: "group-id"},
			},
			Action: r.withStore(r.addUser),
		},
		{
			Name:      "rm-creds",
			Usage:     "delete credentials by id",
			ArgsUsage: "id [id...]",
			Action:    r.withStore(r.removeCreds),
		},
		{
			Name:      "groups",
			Usage:     "list groups by id or name substring",
			ArgsUsage: "[filter]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "name", Usage: "exact name, used together with --domain"},
				cli.StringFlag{Name: "domain"},
			},
			Action: r.withStore(r.listGroups),
		},
		{
			Name:  "add-group",
			Usage: "record a group",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "domain"},
				cli.StringFlag{Name: "name", Usage: "group name (required)"},
			},
			Action: r.withStore(r.addGroup),
		},
		{
			Name:  "members",
			Usage: "list group memberships",
			Flags: []cli.Flag{
				cli.Int64Flag{Name: "user-id"},
				cli.Int64Flag{Name: "group-id"},
				cli.BoolFlag{Name: "remove", Usage: "delete the matching memberships instead"},
			},
			Action: r.withStore(r.members),
		},
		{
			Name:      "shares",
			Usage:     "list shares by id or name substring, or by access",
			ArgsUsage: "[filter]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "access", Usage: "r, w or rw"},
				cli.Int64Flag{Name: "share-id", Usage: "with --access, check one share"},
			},
			Action: r.withStore(r.listShares),
		},
		{
			Name:  "add-share",
			Usage: "record a share seen by a user",
			Flags: []cli.Flag{
				cli.Int64Flag{Name: "host-id"},
				cli.Int64Flag{Name: "user-id"},
				cli.StringFlag{Name: "name"},
				cli.StringFlag{Name: "remark"},
				cli.BoolFlag{Name: "read"},
				cli.BoolFlag{Name: "write"},
			},
			Action: r.withStore(r.addShare),
		},
		{
			Name:  "share-users",
			Usage: "list users with access to a share",
			Flags: []cli.Flag{
				cli.Int64Flag{Name: "host-id"},
				cli.StringFlag{Name: "name"},
				cli.StringFlag{Name: "access", Value: "r"},
			},
			Action: r.withStore(r.shareUsers),
		},
		{
			Name:  "admin",
			Usage: "admin relations",
			Subcommands: []cli.Command{
				{
					Name:  "add",
					Usage: "link a credential to the hosts matching --host",
					Flags: []cli.Flag{
						cli.Int64Flag{Name: "user-id", Usage: "credential id; replaces the lookup fields"},
						cli.StringFlag{Name: "type", Value: domain.CredTypePlaintext},
						cli.StringFlag{Name: "domain"},
						cli.StringFlag{Name: "user"},
						cli.StringFlag{Name: "password"},
						cli.StringFlag{Name: "host", Usage: "IP address or SQL LIKE pattern (required)"},
					},
					Action: r.withStore(r.addAdmin),
				},
				{
					Name:  "list",
					Flags: []cli.Flag{cli.Int64Flag{Name: "user-id"}, cli.Int64Flag{Name: "host-id"}},
					Action: r.withStore(func(c *cli.Context, s *sqlite.Store) error {
						rels, err := s.GetAdminRelations(r.ctx, c.Int64("user-id"), c.Int64("host-id"))
						if err != nil {
							return err
						}
						w := r.table()
						fmt.Fprintln(w, "ID\tUSER\tHOST")
						for _, rel := range rels {
							fmt.Fprintf(w, "%d\t%d\t%d\n", rel.ID, rel.UserID, rel.ComputerID)
						}
						return w.Flush()
					}),
				},
				{
					Name:  "rm",
					Usage: "delete admin relations of users, or of hosts when no user is given",
					Flags: []cli.Flag{
						cli.Int64SliceFlag{Name: "user-id"},
						cli.Int64SliceFlag{Name: "host-id"},
					},
					Action: r.withStore(func(c *cli.Context, s *sqlite.Store) error {
						return s.RemoveAdminRelations(r.ctx, c.Int64Slice("user-id"), c.Int64Slice("host-id"))
					}),
				},
			},
		},
		{
			Name:  "loggedin",
			Usage: "logged-in relations",
			Subcommands: []cli.Command{
				{
					Name:  "add",
					Flags: []cli.Flag{cli.Int64Flag{Name: "user-id"}, cli.Int64Flag{Name: "host-id"}},
					Action: r.withStore(func(c *cli.Context, s *sqlite.Store) error {
						id, err := s.RecordLoggedInEdge(r.ctx, c.Int64("user-id"), c.Int64("host-id"))
						if err != nil {
							return err
						}
						if id == 0 {
							return errors.New("unknown user or host id")
						}
						fmt.Fprintln(r.out, id)
						return nil
					}),
				},
				{
					Name:  "list",
					Flags: []cli.Flag{cli.Int64Flag{Name: "user-id"}, cli.Int64Flag{Name: "host-id"}},
					Action: r.withStore(func(c *cli.Context, s *sqlite.Store) error {
						rels, err := s.GetLoggedInRelations(r.ctx, c.Int64("user-id"), c.Int64("host-id"))
						if err != nil {
							return err
						}
						w := r.table()
						fmt.Fprintln(w, "ID\tUSER\tHOST")
						for _, rel := range rels {
							fmt.Fprintf(w, "%d\t%d\t%d\n", rel.ID, rel.UserID, rel.ComputerID)
						}
						return w.Flush()
					}),
				},
			},
		},
		{
			Name:      "import-nmap",
			Usage:     "record the hosts of nmap XML reports",
			ArgsUsage: "report.xml [report.xml...]",
			Action:    r.withStore(r.importNmap),
		},
		{
			Name:      "scan",
			Usage:     "run nmap with the SMB discovery scripts and record the result",
			ArgsUsage: "target [target...]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "ports", Value: "88,139,389,445"},
				cli.BoolFlag{Name: "skip-discovery", Usage: "treat every target as up (-Pn)"},
				cli.DurationFlag{Name: "timeout", Value: ingestTimeout},
			},
			Action: r.withStore(r.scan),
		},
		{
			Name:      "watch",
			Usage:     "import nmap XML reports as they are written to a directory",
			ArgsUsage: "dir",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "existing", Usage: "import reports already in the directory first"},
				cli.DurationFlag{Name: "debounce", Value: 500 * time.Millisecond},
			},
			Action: r.withStore(r.watch),
		},
		{
			Name:  "export",
			Usage: "write every table in an interchange format",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "format, f", Value: "json", Usage: strings.Join(codec.Formats(), ", ")},
				cli.StringFlag{Name: "output, o", Usage: "file (default: stdout)"},
			},
			Action: r.withStore(r.export),
		},
		{
			Name:      "import",
			Usage:     "merge an exported snapshot into the store",
			ArgsUsage: "file",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "format, f", Value: "json", Usage: strings.Join(codec.Formats(), ", ")},
			},
			Action: r.withStore(r.importSnapshot),
		},
	}
}

func (r *runner) initStore(c *cli.Context) error {
	s, err := sqlite.Open(r.cfg.Database.Path, r.storeOptions()...)
	if err != nil {
		return err
	}
	r.store = s

	if err := s.InitSchema(r.ctx); err != nil {
		return err
	}
	r.log.Info().Str("path", r.cfg.Database.Path).Msg("store initialized")
	return nil
}

func (r *runner) showConfig(c *cli.Context) error {
	source := r.cfgPath
	if source == "" {
		source = "(defaults)"
	}
	fmt.Fprintf(r.out, "Config: %s\n%s\n", source, r.cfg.Summary())
	return nil
}

func (r *runner) writeConfig(c *cli.Context) error {
	path := c.String("path")
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := r.cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintln(r.out, path)
	return nil
}

func (r *runner) listHosts(c *cli.Context, s *sqlite.Store) error {
	hosts, err := s.GetComputers(r.ctx, c.Args().First(), c.String("domain"))
	if err != nil {
		return err
	}

	w := r.table()
	fmt.Fprintln(w, "ID\tIP\tHOSTNAME\tDOMAIN\tOS\tDC\tSMBV1\tSIGNING")
	for _, h := range hosts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\t%t\t%t\n", h.ID, h.IP, h.Hostname, h.Domain, h.OS, h.DC, h.SMBv1, h.Signing)
	}
	return w.Flush()
}

func (r *runner) addHost(c *cli.Context, s *sqlite.Store) error {
	if c.String("ip") == "" {
		return errors.New("--ip is required")
	}

	obs := domain.ComputerObservation{
		IP:         c.String("ip"),
		Hostname:   c.String("hostname"),
		Domain:     c.String("domain"),
		OS:         c.String("os"),
		SMBv1:      c.Bool("smbv1"),
		Signing:    c.Bool("signing"),
		Spooler:    c.Bool("spooler"),
		Zerologon:  c.Bool("zerologon"),
		PetitPotam: c.Bool("petitpotam"),
	}
	if v := c.String("dc"); v != "" {
		dc, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("--dc: %w", err)
		}
		obs.DC = domain.Bool(dc)
	}

	id, err := s.RecordComputer(r.ctx, obs)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, id)
	return nil
}

func (r *runner) listCreds(c *cli.Context, s *sqlite.Store) error {
	creds, err := s.GetCredentials(r.ctx, c.Args().First(), c.String("type"))
	if err != nil {
		return err
	}

	w := r.table()
	fmt.Fprintln(w, "ID\tDOMAIN\tUSERNAME\tTYPE\tSECRET\tPILLAGED FROM")
	for _, cred := range creds {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n", cred.ID, cred.Domain, cred.Username, cred.CredType, cred.Password, cred.PillagedFrom)
	}
	return w.Flush()
}

func (r *runner) addCred(c *cli.Context, s *sqlite.Store) error {
	if c.String("user") == "" {
		return errors.New("--user is required")
	}

	id, err := s.RecordCredential(r.ctx, domain.CredentialObservation{
		CredType:     c.String("type"),
		Domain:       c.String("domain"),
		Username:     c.String("user"),
		Password:     c.String("password"),
		GroupID:      c.Int64("group-id"),
		PillagedFrom: c.Int64("pillaged-from"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, id)
	return nil
}

func (r *runner) addUser(c *cli.Context, s *sqlite.Store) error {
	if c.String("user") == "" {
		return errors.New("--user is required")
	}

	id, err := s.RecordUser(r.ctx, c.String("domain"), c.String("user"), c.Int64("group-id"))
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, id)
	return nil
}

// removeCreds rejects the whole batch if any id is malformed
func (r *runner) removeCreds(c *cli.Context, s *sqlite.Store) error {
	ids, err := parseIDs(c.Args())
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.New("no credential ids given")
	}

	if err := s.RemoveCredentials(r.ctx, ids); err != nil {
		return err
	}
	r.log.Info().Ints64("ids", ids).Msg("credentials removed")
	return nil
}

func parseIDs(args []string) ([]int64, error) {
	var (
		ids  []int64
		errs *multierror.Error
	)
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			errs = multierror.Append(errs, fmt.Errorf("invalid id %q", arg))
			continue
		}
		ids = append(ids, id)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *runner) listGroups(c *cli.Context, s *sqlite.Store) error {
	groups, err := s.GetGroups(r.ctx, c.Args().First(), c.String("name"), c.String("domain"))
	if err != nil {
		return err
	}

	w := r.table()
	fmt.Fprintln(w, "ID\tDOMAIN\tNAME")
	for _, g := range groups {
		fmt.Fprintf(w, "%d\t%s\t%s\n", g.ID, g.Domain, g.Name)
	}
	return w.Flush()
}

func (r *runner) addGroup(c *cli.Context, s *sqlite.Store) error {
	if c.String("name") == "" {
		return errors.New("--name is required")
	}

	id, err := s.RecordGroup(r.ctx, c.String("domain"), c.String("name"))
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, id)
	return nil
}

func (r *runner) members(c *cli.Context, s *sqlite.Store) error {
	userID, groupID := c.Int64("user-id"), c.Int64("group-id")

	if c.Bool("remove") {
		if userID == 0 && groupID == 0 {
			return errors.New("--remove needs --user-id or --group-id")
		}
		return s.RemoveGroupRelations(r.ctx, userID, groupID)
	}

	rels, err := s.GetGroupRelations(r.ctx, userID, groupID)
	if err != nil {
		return err
	}
	w := r.table()
	fmt.Fprintln(w, "ID\tUSER\tGROUP")
	for _, rel := range rels {
		fmt.Fprintf(w, "%d\t%d\t%d\n", rel.ID, rel.UserID, rel.GroupID)
	}
	return w.Flush()
}

func (r *runner) listShares(c *cli.Context, s *sqlite.Store) error {
	var (
		shares []domain.Share
		err    error
	)
	if access := c.String("access"); access != "" {
		shares, err = s.GetSharesByAccess(r.ctx, access, c.Int64("share-id"))
	} else {
		shares, err = s.GetShares(r.ctx, c.Args().First())
	}
	if err != nil {
		return err
	}

	w := r.table()
	fmt.Fprintln(w, "ID\tHOST\tUSER\tNAME\tREAD\tWRITE\tREMARK")
	for _, sh := range shares {
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%t\t%t\t%s\n", sh.ID, sh.ComputerID, sh.UserID, sh.Name, sh.Read, sh.Write, sh.Remark)
	}
	return w.Flush()
}

func (r *runner) addShare(c *cli.Context, s *sqlite.Store) error {
	if c.String("name") == "" {
		return errors.New("--name is required")
	}

	id, err := s.RecordShare(r.ctx, domain.Share{
		ComputerID: c.Int64("host-id"),
		UserID:     c.Int64("user-id"),
		Name:       c.String("name"),
		Remark:     c.String("remark"),
		Read:       c.Bool("read"),
		Write:      c.Bool("write"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, id)
	return nil
}

func (r *runner) shareUsers(c *cli.Context, s *sqlite.Store) error {
	ids, err := s.GetUsersWithShareAccess(r.ctx, c.Int64("host-id"), c.String("name"), c.String("access"))
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(r.out, id)
	}
	return nil
}

func (r *runner) addAdmin(c *cli.Context, s *sqlite.Store) error {
	if c.String("host") == "" {
		return errors.New("--host is required")
	}

	created, err := s.RecordAdminEdge(r.ctx, domain.AdminObservation{
		CredType: c.String("type"),
		Domain:   c.String("domain"),
		Username: c.String("user"),
		Password: c.String("password"),
		Host:     c.String("host"),
		UserID:   c.Int64("user-id"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, created)
	return nil
}

func (r *runner) importNmap(c *cli.Context, s *sqlite.Store) error {
	if c.NArg() == 0 {
		return errors.New("no report given")
	}

	importer := ingest.NewNmapImporter(s, ingest.WithLogger(logger.WithComponent("nmap")))

	var errs *multierror.Error
	for _, path := range c.Args() {
		result, err := importer.ImportFile(r.ctx, path)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", path, err))
		}
		fmt.Fprintf(r.out, "%s: %d hosts, %d recorded, %d skipped\n", path, result.Hosts, result.Recorded, result.Skipped)
	}
	return errs.ErrorOrNil()
}

func (r *runner) scan(c *cli.Context, s *sqlite.Store) error {
	if c.NArg() == 0 {
		return errors.New("no target given")
	}

	importer := ingest.NewNmapImporter(s,
		ingest.WithLogger(logger.WithComponent("nmap")),
		ingest.WithPortRange(c.String("ports")),
		ingest.WithSkipHostDiscovery(c.Bool("skip-discovery")),
		ingest.WithTimeout(c.Duration("timeout")),
	)

	result, err := importer.Scan(r.ctx, c.Args())
	fmt.Fprintf(r.out, "%d hosts, %d recorded, %d skipped\n", result.Hosts, result.Recorded, result.Skipped)
	return err
}

func (r *runner) watch(c *cli.Context, s *sqlite.Store) error {
	if c.NArg() != 1 {
		return errors.New("expected one directory")
	}

	importer := ingest.NewNmapImporter(s, ingest.WithLogger(logger.WithComponent("nmap")))
	w := ingest.NewWatcher(c.Args().First(), importer, logger.WithComponent("watch")).
		WithDebounce(c.Duration("debounce"))

	if c.Bool("existing") {
		n, err := w.ImportExisting(r.ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%d existing reports imported\n", n)
	}

	// Interrupt is the normal way to stop watching
	if err := w.Watch(r.ctx); err != nil && r.ctx.Err() == nil {
		return err
	}
	return nil
}

func (r *runner) export(c *cli.Context, s *sqlite.Store) error {
	exp, err := codec.ForFormat(c.String("format"))
	if err != nil {
		return err
	}

	snap, err := s.Snapshot(r.ctx)
	if err != nil {
		return err
	}

	path := c.String("output")
	if path == "" {
		return exp.Export(snap, r.out)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := exp.Export(snap, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (r *runner) importSnapshot(c *cli.Context, s *sqlite.Store) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one file")
	}

	imp, err := codec.ForFormat(c.String("format"))
	if err != nil {
		return err
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	snap, err := imp.Parse(f)
	if err != nil {
		return err
	}

	result, err := ingest.NewReplayer(s, logger.WithComponent("import")).Replay(r.ctx, snap)
	fmt.Fprintf(r.out, "%d rows replayed, %d skipped\n", result.Replayed, result.Skipped)
	return err
}
